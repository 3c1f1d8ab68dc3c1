package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesquad-ai/codesquad/internal/event"
	"github.com/codesquad-ai/codesquad/internal/ledger"
	"github.com/codesquad-ai/codesquad/internal/project"
	"github.com/codesquad-ai/codesquad/internal/provider"
	"github.com/codesquad-ai/codesquad/internal/session"
	"github.com/codesquad-ai/codesquad/internal/squad"
	"github.com/codesquad-ai/codesquad/internal/storage"
	"github.com/codesquad-ai/codesquad/internal/workspace"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

// echoProvider streams a fixed two-chunk response for gateway tests.
type echoProvider struct{}

func (echoProvider) ID() string   { return "fake" }
func (echoProvider) Name() string { return "Fake" }

func (echoProvider) Models() []types.Model {
	return []types.Model{{ID: "fake-model", ProviderID: "fake", CostPerMInput: 1, CostPerMOutput: 1}}
}

func (echoProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return &provider.Response{Content: "echo"}, nil
}

func (echoProvider) Stream(ctx context.Context, req *provider.Request) (*provider.Stream, error) {
	reader := schema.StreamReaderFromArray([]*schema.Message{
		{Role: schema.Assistant, Content: "echo: "},
		{Role: schema.Assistant, Content: "done"},
		{
			Role: schema.Assistant,
			ResponseMeta: &schema.ResponseMeta{
				FinishReason: "stop",
				Usage:        &schema.TokenUsage{PromptTokens: 5, CompletionTokens: 2},
			},
		},
	})
	return provider.NewStream(reader, "fake"), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("posix shell required")
	}

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })
	store := storage.New(t.TempDir())
	cfg := &types.Config{Model: "fake/fake-model", CommandTimeoutMS: 10000}

	providers := provider.NewRegistry(cfg)
	providers.Register(echoProvider{})

	registry := session.NewRegistry(ws, store, bus)
	tasks := ledger.New(50, bus)
	squads := squad.New(ws, bus, nil)
	coordinator := session.NewCoordinator(registry, providers, tasks, squads, ws, bus, cfg)
	projects := project.NewService(ws, store, bus)

	srv := New(DefaultConfig(), cfg, coordinator, projects, squads, ws, bus)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestProjectLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/project", map[string]string{"name": "demo app"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[project.Info](t, resp)
	assert.Equal(t, "demo app", created.Name)

	resp = doJSON(t, http.MethodGet, ts.URL+"/project/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]project.Info](t, resp)
	require.Len(t, list, 1)

	resp = doJSON(t, http.MethodPost, ts.URL+"/project/"+created.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	archived := decode[project.Info](t, resp)
	assert.True(t, archived.Archived)

	resp = doJSON(t, http.MethodGet, ts.URL+"/project/", nil)
	assert.Empty(t, decode[[]project.Info](t, resp))

	resp = doJSON(t, http.MethodPost, ts.URL+"/project/"+created.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, ts.URL+"/project/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/project/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestProjectExportImport(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/project", map[string]string{"name": "source"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[project.Info](t, resp)

	resp = doJSON(t, http.MethodPut, ts.URL+"/file/content", map[string]string{
		"path":    created.Path + "/main.go",
		"content": "package main",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/project/" + created.ID + "/export")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	var archive bytes.Buffer
	_, err = archive.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/project/import?name=copy", bytes.NewReader(archive.Bytes()))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	imported := decode[project.Info](t, resp)

	resp, err = http.Get(ts.URL + "/file/content?path=" + imported.Path + "/main.go")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "package main", body["content"])
}

func TestFileHandlers(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPut, ts.URL+"/file/content", map[string]string{
		"path":    "projects/demo/notes.txt",
		"content": "hello",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/file/content?path=projects/demo/notes.txt")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "hello", body["content"])

	resp, err = http.Get(ts.URL + "/file/?path=projects/demo")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]workspace.Entry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name)
}

func TestFileHandlers_Forbidden(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/file/content?path=../../etc/passwd")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, types.CodeForbidden, body.Error.Code)
}

func TestSessionHandlers(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/session", map[string]string{"id": "01JF8B2V9NXQ4T"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[types.Session](t, resp)
	assert.Equal(t, "01JF8B2V9NXQ4T", created.ID)

	resp = doJSON(t, http.MethodPatch, ts.URL+"/session/01JF8B2V9NXQ4T", map[string]string{"title": "refactor"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	renamed := decode[types.Session](t, resp)
	assert.Equal(t, "refactor", renamed.Title)

	resp = doJSON(t, http.MethodGet, ts.URL+"/session/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]types.Session](t, resp)
	require.Len(t, list, 1)
}

func TestSessionHandlers_InvalidID(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/session", map[string]string{"id": "no good"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSquadHandlers(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/squad/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]types.SquadSession](t, resp))

	resp, err = http.Get(ts.URL + "/squad/status?agent=gemini")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[types.AgentHealth](t, resp)
	assert.False(t, health.Installed)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/squad/nope", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSE_Connects(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/event", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	first := string(buf[:n])
	assert.True(t, strings.Contains(first, "server.connected"), "got %q", first)
}

func TestStatusForCode(t *testing.T) {
	cases := map[string]int{
		types.CodeForbidden:        http.StatusForbidden,
		types.CodeNotFound:         http.StatusNotFound,
		types.CodeBusy:             http.StatusConflict,
		types.CodeInvalidRequest:   http.StatusBadRequest,
		types.CodeUnsupportedAgent: http.StatusBadRequest,
		types.CodeTimeout:          http.StatusGatewayTimeout,
		types.CodeProviderError:    http.StatusBadGateway,
		types.CodeSpawnFailed:      http.StatusBadGateway,
		types.CodeInternalError:    http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusForCode(code), code)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusTeapot, "SOME_CODE", "steeping")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SOME_CODE", body.Error.Code)
	assert.Equal(t, "steeping", body.Error.Message)
}
