// Package squad owns the set of live multi-agent sessions. Each squad
// session binds one supervised agent process to one workspace directory.
// Squad sessions are shared resources: they survive the creating client's
// disconnect and remain listable by every connection.
package squad

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/codesquad-ai/codesquad/internal/event"
	"github.com/codesquad-ai/codesquad/internal/logging"
	"github.com/codesquad-ai/codesquad/internal/supervisor"
	"github.com/codesquad-ai/codesquad/internal/workspace"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

var (
	ErrUnsupportedAgent = errors.New("unsupported agent type")
	ErrSpawnFailed      = errors.New("agent spawn failed")
	ErrSquadNotFound    = errors.New("squad session not found")
	ErrNotRunning       = errors.New("squad session not running")
)

const (
	defaultExecuteTimeout = 5 * time.Minute
	defaultTerminateGrace = 5 * time.Second

	// minUptime is how long a spawned process must stay alive before the
	// squad session is considered running.
	minUptime = 250 * time.Millisecond
)

type squadState struct {
	mu      sync.Mutex // guards session mutations
	session *types.SquadSession
	proc    *supervisor.Process

	// execMu serializes Execute calls so only one command is in flight
	// per squad session.
	execMu sync.Mutex
}

func (s *squadState) snapshot() *types.SquadSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *s.session
	return &copy
}

// Orchestrator manages squad sessions on top of the process supervisor.
type Orchestrator struct {
	mu     sync.RWMutex
	squads map[string]*squadState
	order  []string

	ws           *workspace.Workspace
	bus          *event.Bus
	specs        map[types.AgentType]agentSpec
	defaultAgent types.AgentType

	executeTimeout time.Duration
	terminateGrace time.Duration
	readyUptime    time.Duration
}

// New creates an Orchestrator. cfg may be nil; defaults apply.
func New(ws *workspace.Workspace, bus *event.Bus, cfg *types.SquadConfig) *Orchestrator {
	o := &Orchestrator{
		squads:         make(map[string]*squadState),
		ws:             ws,
		bus:            bus,
		specs:          builtinAgents(),
		defaultAgent:   types.AgentClaudeCode,
		executeTimeout: defaultExecuteTimeout,
		terminateGrace: defaultTerminateGrace,
		readyUptime:    minUptime,
	}

	if cfg != nil {
		if cfg.DefaultAgent != "" {
			o.defaultAgent = cfg.DefaultAgent
		}
		if cfg.ExecuteTimeoutMS > 0 {
			o.executeTimeout = time.Duration(cfg.ExecuteTimeoutMS) * time.Millisecond
		}
		if cfg.TerminateGraceMS > 0 {
			o.terminateGrace = time.Duration(cfg.TerminateGraceMS) * time.Millisecond
		}
	}
	return o
}

// Status probes whether the agent backend is installed; pure query.
func (o *Orchestrator) Status(ctx context.Context, agentType types.AgentType) *types.AgentHealth {
	resolved, spec, err := o.resolveAgent(agentType)
	if err != nil {
		return &types.AgentHealth{AgentType: agentType, Error: err.Error()}
	}

	health := &types.AgentHealth{AgentType: resolved}
	version, err := supervisor.Probe(ctx, spec.binary, spec.versionArg)
	if err != nil {
		health.Error = err.Error()
		return health
	}
	health.Installed = true
	health.Version = version
	return health
}

// Install runs the agent backend's install command. Safe to repeat; the
// underlying package managers are idempotent.
func (o *Orchestrator) Install(ctx context.Context, agentType types.AgentType) (*supervisor.Result, error) {
	resolved, spec, err := o.resolveAgent(agentType)
	if err != nil {
		return nil, err
	}

	logging.Info().Str("agent", string(resolved)).Str("command", spec.install.String()).Msg("installing agent")
	return supervisor.Run(ctx, spec.install, supervisor.MaxRunTimeout)
}

// CreateRequest describes a squad session to create.
type CreateRequest struct {
	Workspace  string
	AgentType  types.AgentType
	Name       string
	AutoAccept bool
	SessionID  string
}

// Create validates the workspace path, spawns the agent process, and waits
// for it to settle into running. The returned session reflects the state
// after the readiness probe.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*types.SquadSession, error) {
	resolved, err := o.ws.Resolve(req.Workspace)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", req.Workspace, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s: not a directory", req.Workspace)
	}

	agentType, spec, err := o.resolveAgent(req.AgentType)
	if err != nil {
		return nil, err
	}
	if !supervisor.Installed(spec.binary) {
		return nil, fmt.Errorf("%w: %s is not installed", ErrSpawnFailed, spec.binary)
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("%s squad", spec.display)
	}

	state := &squadState{
		session: &types.SquadSession{
			ID:         ulid.Make().String(),
			Name:       name,
			Workspace:  resolved,
			AgentType:  agentType,
			Status:     types.SquadStarting,
			AutoAccept: req.AutoAccept,
			SessionID:  req.SessionID,
			Created:    time.Now().UnixMilli(),
		},
	}

	o.mu.Lock()
	o.squads[state.session.ID] = state
	o.order = append(o.order, state.session.ID)
	o.mu.Unlock()
	o.publish(event.SquadCreated, state.snapshot())

	proc, err := supervisor.Spawn(supervisor.Spec{
		Binary: spec.binary,
		Args:   spec.launchArgs(req.AutoAccept),
		Dir:    resolved,
	})
	if err != nil {
		o.fail(state, fmt.Sprintf("spawn: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	state.mu.Lock()
	state.proc = proc
	state.mu.Unlock()

	if err := o.awaitReady(proc); err != nil {
		o.fail(state, err.Error())
		proc.Stop(o.terminateGrace)
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	state.mu.Lock()
	state.session.Status = types.SquadRunning
	state.mu.Unlock()
	o.publish(event.SquadUpdated, state.snapshot())

	go o.monitor(state, proc)

	logging.Info().
		Str("squadID", state.session.ID).
		Str("agent", string(agentType)).
		Str("workspace", resolved).
		Msg("squad session running")
	return state.snapshot(), nil
}

// awaitReady polls the spawned process until it has stayed alive for the
// minimum uptime. A process that exits during the window is a permanent
// failure.
func (o *Orchestrator) awaitReady(proc *supervisor.Process) error {
	deadline := time.Now().Add(o.readyUptime)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(func() error {
		if !proc.Running() {
			if err := proc.ExitError(); err != nil {
				return backoff.Permanent(fmt.Errorf("agent exited during startup: %v", err))
			}
			return backoff.Permanent(errors.New("agent exited during startup"))
		}
		if time.Now().Before(deadline) {
			return errors.New("settling")
		}
		return nil
	}, bo)
}

// monitor watches a running process and records unexpected exits. An exit
// after Terminate has already moved the session to terminated is ignored.
func (o *Orchestrator) monitor(state *squadState, proc *supervisor.Process) {
	err := proc.Wait(context.Background())

	state.mu.Lock()
	if state.session.Status != types.SquadRunning {
		state.mu.Unlock()
		return
	}
	if err != nil {
		state.session.Status = types.SquadFailed
		state.session.Error = fmt.Sprintf("agent process crashed: %v", err)
	} else {
		state.session.Status = types.SquadTerminated
	}
	state.mu.Unlock()

	logging.Warn().
		Str("squadID", state.session.ID).
		Err(err).
		Msg("squad process exited")
	o.publish(event.SquadUpdated, state.snapshot())
}

// List returns all squad sessions in creation order.
func (o *Orchestrator) List() []*types.SquadSession {
	o.mu.RLock()
	defer o.mu.RUnlock()

	result := make([]*types.SquadSession, 0, len(o.order))
	for _, id := range o.order {
		result = append(result, o.squads[id].snapshot())
	}
	return result
}

// Get returns one squad session.
func (o *Orchestrator) Get(id string) (*types.SquadSession, error) {
	o.mu.RLock()
	state, ok := o.squads[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSquadNotFound, id)
	}
	return state.snapshot(), nil
}

// Execute runs one command through the squad's agent in its workspace.
// Calls against the same squad are serialized; the second caller blocks
// until the first command returns.
func (o *Orchestrator) Execute(ctx context.Context, id, command string, timeout time.Duration) (*supervisor.Result, error) {
	o.mu.RLock()
	state, ok := o.squads[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSquadNotFound, id)
	}

	state.execMu.Lock()
	defer state.execMu.Unlock()

	session := state.snapshot()
	if session.Status != types.SquadRunning {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRunning, id, session.Status)
	}

	spec := o.specs[session.AgentType]
	if timeout <= 0 {
		timeout = o.executeTimeout
	}

	return supervisor.Run(ctx, supervisor.Spec{
		Binary: spec.binary,
		Args:   spec.execArgs(command, session.AutoAccept),
		Dir:    session.Workspace,
	}, timeout)
}

// Terminate ends a squad session: TERM, grace period, then KILL. The
// session always lands in terminated. Terminating an already-ended session
// is a no-op that returns its current state.
func (o *Orchestrator) Terminate(id string) (*types.SquadSession, error) {
	o.mu.RLock()
	state, ok := o.squads[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSquadNotFound, id)
	}

	state.mu.Lock()
	status := state.session.Status
	if status == types.SquadTerminated || status == types.SquadFailed {
		state.mu.Unlock()
		return state.snapshot(), nil
	}
	state.session.Status = types.SquadTerminated
	proc := state.proc
	state.mu.Unlock()

	if proc != nil {
		if err := proc.Stop(o.terminateGrace); err != nil {
			logging.Error().Err(err).Str("squadID", id).Msg("squad terminate")
		}
	}

	logging.Info().Str("squadID", id).Msg("squad session terminated")
	o.publish(event.SquadUpdated, state.snapshot())
	return state.snapshot(), nil
}

// Shutdown terminates every live squad session.
func (o *Orchestrator) Shutdown() {
	for _, session := range o.List() {
		if session.Status == types.SquadStarting || session.Status == types.SquadRunning {
			o.Terminate(session.ID)
		}
	}
}

func (o *Orchestrator) fail(state *squadState, reason string) {
	state.mu.Lock()
	state.session.Status = types.SquadFailed
	state.session.Error = reason
	state.mu.Unlock()
	o.publish(event.SquadUpdated, state.snapshot())
}

func (o *Orchestrator) publish(eventType event.Type, session *types.SquadSession) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(event.Event{
		Type: eventType,
		Data: event.SquadData{Info: session},
	})
}
