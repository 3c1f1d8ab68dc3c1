// Package session owns one session object per client identity and
// multiplexes that client's requests across the provider gateway, the
// shell executor, the workspace, and the squad orchestrator. All outbound
// envelopes for a connection pass through a single ordered Sender.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/codesquad-ai/codesquad/internal/event"
	"github.com/codesquad-ai/codesquad/internal/logging"
	"github.com/codesquad-ai/codesquad/internal/storage"
	"github.com/codesquad-ai/codesquad/internal/workspace"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

// maxHistory bounds the in-memory chat history kept per session for
// context continuity.
const maxHistory = 20

// Session IDs are client-generated tokens, ULID-shaped or similar.
var sessionIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{8,64}$`)

// ErrInvalidSessionID rejects identities the client made up badly.
var ErrInvalidSessionID = fmt.Errorf("invalid session id")

// Session is the runtime state for one client identity. It outlives any
// single connection; reconnecting with the same ID re-attaches to it.
type Session struct {
	mu   sync.Mutex
	info types.Session

	history  []types.ChatExchange
	inFlight bool

	// cancels tracks the in-flight work started by the current
	// connection, cancelled on detach.
	cancels map[uint64]context.CancelFunc
	nextID  uint64

	workspaceDir string
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.info.ID
}

// WorkspaceDir returns the session's resolved workspace directory.
func (s *Session) WorkspaceDir() string {
	return s.workspaceDir
}

// Info returns a snapshot of the session record.
func (s *Session) Info() *types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	return &info
}

// begin claims the session's single in-flight slot. It returns false if a
// chat or agent request is already outstanding.
func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

func (s *Session) end() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// InFlight reports whether a chat or agent request is outstanding.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// track derives a cancellable context that detach will cancel.
func (s *Session) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.cancels == nil {
		s.cancels = make(map[uint64]context.CancelFunc)
	}
	s.cancels[id] = cancel
	s.mu.Unlock()

	return ctx, func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
	}
}

// detach cancels all tracked work for the current connection.
func (s *Session) detach() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// recordExchange folds one completed chat exchange into the session's
// accounting and bounded history.
func (s *Session) recordExchange(exchange types.ChatExchange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info.TotalTokens += exchange.Tokens
	s.info.TotalCost += exchange.Cost
	s.touchLocked()

	s.history = append(s.history, exchange)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
}

// History returns a copy of the retained chat exchanges, oldest first.
func (s *Session) History() []types.ChatExchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ChatExchange(nil), s.history...)
}

func (s *Session) touchLocked() {
	now := time.Now().UnixMilli()
	s.info.LastActivity = now
	s.info.Time.Updated = now
}

// Touch updates the session's activity timestamps.
func (s *Session) Touch() {
	s.mu.Lock()
	s.touchLocked()
	s.mu.Unlock()
}

// Registry keys sessions by client identity and persists their records so
// accumulated usage survives server restarts.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ws    *workspace.Workspace
	store *storage.Storage
	bus   *event.Bus
}

// NewRegistry creates a session registry. store and bus may be nil.
func NewRegistry(ws *workspace.Workspace, store *storage.Storage, bus *event.Bus) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ws:       ws,
		store:    store,
		bus:      bus,
	}
}

// Attach returns the session for id, creating it on first use. The
// session's workspace directory under the projects root is created if
// missing.
func (r *Registry) Attach(ctx context.Context, id string) (*Session, error) {
	if !sessionIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.Touch()
		return s, nil
	}

	dir, err := r.ws.MkdirAll(filepath.Join("projects", id))
	if err != nil {
		return nil, fmt.Errorf("session workspace: %w", err)
	}

	s := &Session{workspaceDir: dir}

	// Reconnects after a restart pick up the persisted record.
	if r.store != nil && r.store.Get(ctx, []string{"sessions", id}, &s.info) == nil {
		s.Touch()
	} else {
		now := time.Now().UnixMilli()
		s.info = types.Session{
			ID:           id,
			Workspace:    dir,
			Time:         types.Time{Created: now, Updated: now},
			LastActivity: now,
		}
		r.persist(ctx, s)
		r.publish(event.SessionCreated, s.Info())
		logging.Info().Str("sessionID", id).Str("workspace", dir).Msg("session created")
	}

	r.sessions[id] = s
	return s, nil
}

// Release drops the in-memory session object. The persisted record keeps
// accumulated usage, so a later Attach with the same identity restores it.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Get returns an already-attached session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns snapshots of all attached sessions.
func (r *Registry) List() []*types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*types.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s.Info())
	}
	return result
}

// Rename sets the session title.
func (r *Registry) Rename(ctx context.Context, id, title string) (*types.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}

	s.mu.Lock()
	s.info.Title = title
	s.touchLocked()
	s.mu.Unlock()

	r.persist(ctx, s)
	r.publish(event.SessionUpdated, s.Info())
	return s.Info(), nil
}

// Save persists the session record.
func (r *Registry) Save(ctx context.Context, s *Session) {
	r.persist(ctx, s)
	r.publish(event.SessionUpdated, s.Info())
}

func (r *Registry) persist(ctx context.Context, s *Session) {
	if r.store == nil {
		return
	}
	if err := r.store.Put(ctx, []string{"sessions", s.ID()}, s.Info()); err != nil {
		logging.Error().Err(err).Str("sessionID", s.ID()).Msg("persist session")
	}
}

func (r *Registry) publish(eventType event.Type, info *types.Session) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(event.Event{Type: eventType, Data: event.SessionData{Info: info}})
}
