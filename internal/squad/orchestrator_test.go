package squad

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesquad-ai/codesquad/internal/workspace"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

// shellAgent is a stand-in backend driven by sh: the long-lived process
// sleeps and one-shot commands run verbatim.
func shellAgent(launch string) agentSpec {
	return agentSpec{
		binary:     "sh",
		display:    "Shell",
		versionArg: "--help",
		launchArgs: func(bool) []string {
			return []string{"-c", launch}
		},
		execArgs: func(command string, _ bool) []string {
			return []string{"-c", command}
		},
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *workspace.Workspace) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("posix shell required")
	}

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Root(), "projects", "demo"), 0o755))

	o := New(ws, nil, nil)
	o.readyUptime = 50 * time.Millisecond
	o.terminateGrace = time.Second
	o.specs[types.AgentClaudeCode] = shellAgent("sleep 30")
	return o, ws
}

func TestCreate_Lifecycle(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	defer o.Shutdown()

	session, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, types.SquadRunning, session.Status)
	assert.Equal(t, types.AgentClaudeCode, session.AgentType)
	assert.Equal(t, "s1", session.SessionID)
	assert.NotEmpty(t, session.ID)

	list := o.List()
	require.Len(t, list, 1)
	assert.Equal(t, session.ID, list[0].ID)

	terminated, err := o.Terminate(session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SquadTerminated, terminated.Status)

	// Second terminate is a no-op reporting the terminal state.
	again, err := o.Terminate(session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SquadTerminated, again.Status)
}

func TestCreate_DefaultName(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	defer o.Shutdown()

	session, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)
	assert.Equal(t, "Shell squad", session.Name)
}

func TestCreate_PathOutsideRoot(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.Create(context.Background(), CreateRequest{
		Workspace: "../escape",
		AgentType: types.AgentClaudeCode,
	})
	assert.ErrorIs(t, err, workspace.ErrForbidden)
	assert.Empty(t, o.List())
}

func TestCreate_MissingWorkspaceDir(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/nope",
		AgentType: types.AgentClaudeCode,
	})
	assert.Error(t, err)
}

func TestCreate_UnsupportedAgent(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentType("gemini"),
	})
	assert.ErrorIs(t, err, ErrUnsupportedAgent)
}

func TestCreate_BinaryNotInstalled(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.specs[types.AgentClaudeCode] = agentSpec{
		binary:     "definitely-not-a-binary-xyz",
		display:    "Ghost",
		launchArgs: func(bool) []string { return nil },
		execArgs:   func(string, bool) []string { return nil },
	}

	_, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	assert.ErrorIs(t, err, ErrSpawnFailed)
}

func TestCreate_AgentExitsDuringStartup(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.specs[types.AgentClaudeCode] = shellAgent("exit 1")

	_, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	require.ErrorIs(t, err, ErrSpawnFailed)

	list := o.List()
	require.Len(t, list, 1)
	assert.Equal(t, types.SquadFailed, list[0].Status)
	assert.NotEmpty(t, list[0].Error)
}

func TestMonitor_DetectsCrash(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.specs[types.AgentClaudeCode] = shellAgent("sleep 0.2; exit 3")

	session, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)
	require.Equal(t, types.SquadRunning, session.Status)

	require.Eventually(t, func() bool {
		got, err := o.Get(session.ID)
		return err == nil && got.Status == types.SquadFailed
	}, 5*time.Second, 20*time.Millisecond)

	got, err := o.Get(session.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Error, "crashed")
}

func TestMonitor_CleanExitIsTerminated(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.specs[types.AgentClaudeCode] = shellAgent("sleep 0.2")

	session, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := o.Get(session.ID)
		return err == nil && got.Status == types.SquadTerminated
	}, 5*time.Second, 20*time.Millisecond)
}

func TestExecute(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	defer o.Shutdown()

	session, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)

	result, err := o.Execute(context.Background(), session.ID, "echo hi", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecute_RunsInWorkspace(t *testing.T) {
	o, ws := newTestOrchestrator(t)
	defer o.Shutdown()

	session, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)

	result, err := o.Execute(context.Background(), session.ID, "pwd", 10*time.Second)
	require.NoError(t, err)
	assert.Contains(t, strings.TrimSpace(result.Stdout), filepath.Join(ws.Root(), "projects", "demo"))
}

func TestExecute_Serialized(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	defer o.Shutdown()

	session, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)

	log := filepath.Join(t.TempDir(), "order.log")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Execute(context.Background(), session.ID,
			"echo start1 >> "+log+"; sleep 0.3; echo end1 >> "+log, 10*time.Second)
	}()

	// Let the first command take the per-squad slot before issuing the
	// second.
	time.Sleep(100 * time.Millisecond)
	_, err = o.Execute(context.Background(), session.ID, "echo start2 >> "+log, 10*time.Second)
	require.NoError(t, err)
	wg.Wait()

	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, []string{"start1", "end1", "start2"},
		strings.Fields(string(data)))
}

func TestExecute_Timeout(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	defer o.Shutdown()

	session, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)

	result, err := o.Execute(context.Background(), session.ID, "echo partial; sleep 30", 300*time.Millisecond)
	require.Error(t, err)
	assert.True(t, result.TimedOut)
	assert.Equal(t, "partial\n", result.Stdout)
}

func TestExecute_NotRunning(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	session, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo",
		AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)

	_, err = o.Terminate(session.ID)
	require.NoError(t, err)

	_, err = o.Execute(context.Background(), session.ID, "echo hi", time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestExecute_UnknownSquad(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.Execute(context.Background(), "nope", "echo hi", time.Second)
	assert.ErrorIs(t, err, ErrSquadNotFound)
}

func TestGet_Unknown(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.Get("nope")
	assert.ErrorIs(t, err, ErrSquadNotFound)
}

func TestResolveAgent_Auto(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.specs[types.AgentClaudeCode] = agentSpec{binary: "definitely-not-a-binary-xyz"}
	o.specs[types.AgentAider] = shellAgent("sleep 30")

	resolved, spec, err := o.resolveAgent(types.AgentAuto)
	require.NoError(t, err)
	assert.Equal(t, types.AgentAider, resolved)
	assert.Equal(t, "sh", spec.binary)
}

func TestResolveAgent_AutoNoneInstalled(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	for agent := range o.specs {
		o.specs[agent] = agentSpec{binary: "definitely-not-a-binary-xyz"}
	}

	_, _, err := o.resolveAgent(types.AgentAuto)
	assert.ErrorIs(t, err, ErrUnsupportedAgent)
}

func TestResolveAgent_EmptyUsesDefault(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.defaultAgent = types.AgentCodex

	resolved, _, err := o.resolveAgent("")
	require.NoError(t, err)
	assert.Equal(t, types.AgentCodex, resolved)
}

func TestStatus_UnsupportedAgent(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	health := o.Status(context.Background(), types.AgentType("gemini"))
	assert.False(t, health.Installed)
	assert.NotEmpty(t, health.Error)
}

func TestStatus_NotInstalled(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.specs[types.AgentClaudeCode] = agentSpec{binary: "definitely-not-a-binary-xyz"}

	health := o.Status(context.Background(), types.AgentClaudeCode)
	assert.False(t, health.Installed)
	assert.NotEmpty(t, health.Error)
}

func TestShutdown_TerminatesAll(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	a, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo", AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)
	b, err := o.Create(context.Background(), CreateRequest{
		Workspace: "projects/demo", AgentType: types.AgentClaudeCode,
	})
	require.NoError(t, err)

	o.Shutdown()

	for _, id := range []string{a.ID, b.ID} {
		got, err := o.Get(id)
		require.NoError(t, err)
		assert.Equal(t, types.SquadTerminated, got.Status)
	}
}
