package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"mvdan.cc/sh/v3/syntax"

	"github.com/codesquad-ai/codesquad/internal/event"
	"github.com/codesquad-ai/codesquad/internal/ledger"
	"github.com/codesquad-ai/codesquad/internal/logging"
	"github.com/codesquad-ai/codesquad/internal/provider"
	"github.com/codesquad-ai/codesquad/internal/squad"
	"github.com/codesquad-ai/codesquad/internal/storage"
	"github.com/codesquad-ai/codesquad/internal/supervisor"
	"github.com/codesquad-ai/codesquad/internal/workspace"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

const systemPrompt = `You are CodeSquad, a coding assistant working inside the user's project workspace. Answer concisely. When the user shares editor context, ground your answer in it.`

const defaultMaxTokens = 4096

// Sender serializes outbound envelopes for one connection. Send returns an
// error once the connection is gone; handlers stop emitting at that point.
type Sender interface {
	Send(envelope *types.Outbound) error
}

// Coordinator dispatches decoded envelopes for a session to the right
// collaborator and streams results back through the connection's Sender.
type Coordinator struct {
	registry  *Registry
	providers *provider.Registry
	tasks     *ledger.Ledger
	squads    *squad.Orchestrator
	ws        *workspace.Workspace
	bus       *event.Bus
	cfg       *types.Config
}

// NewCoordinator wires a coordinator. bus may be nil.
func NewCoordinator(
	registry *Registry,
	providers *provider.Registry,
	tasks *ledger.Ledger,
	squads *squad.Orchestrator,
	ws *workspace.Workspace,
	bus *event.Bus,
	cfg *types.Config,
) *Coordinator {
	return &Coordinator{
		registry:  registry,
		providers: providers,
		tasks:     tasks,
		squads:    squads,
		ws:        ws,
		bus:       bus,
		cfg:       cfg,
	}
}

// Registry exposes the session registry for the transport layer.
func (c *Coordinator) Registry() *Registry { return c.registry }

// HandleChat streams one chat exchange: exactly one chat_response_start,
// zero or more ordered chunks, then either one chat_response_complete or
// one error envelope, never both. A second chat while one is in flight is
// rejected with Busy.
func (c *Coordinator) HandleChat(ctx context.Context, s *Session, sender Sender, content string, editorCtx *types.EditorContext) {
	if !s.begin() {
		sender.Send(types.NewError(types.CodeBusy, "a request is already in flight for this session"))
		return
	}
	defer s.end()

	chatCtx, done := s.track(ctx)
	defer done()

	if err := sender.Send(types.NewChatStart()); err != nil {
		return
	}

	p, model, err := c.providers.Default()
	if err != nil {
		sender.Send(types.NewError(types.CodeProviderError, err.Error()))
		return
	}

	stream, err := p.Stream(chatCtx, &provider.Request{
		Model:     model.ID,
		Messages:  c.buildMessages(s, content, editorCtx),
		MaxTokens: c.maxTokens(p.ID()),
	})
	if err != nil {
		c.sendError(sender, err)
		return
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			logging.Warn().Err(err).Str("sessionID", s.ID()).Msg("chat stream failed")
			c.sendError(sender, err)
			return
		}
		if chunk.Delta == "" {
			continue
		}
		if err := sender.Send(types.NewChatChunk(chunk.Delta)); err != nil {
			return
		}
	}

	usage := stream.Usage()
	cost := usage.Cost(model)
	exchange := types.ChatExchange{
		Request:   content,
		Context:   editorCtx,
		Response:  stream.Content(),
		Tokens:    usage.Total(),
		Cost:      cost,
		Completed: time.Now().UnixMilli(),
	}
	s.recordExchange(exchange)
	c.registry.Save(ctx, s)

	sender.Send(types.NewChatComplete(usage.Total(), cost))
}

// HandleCommand executes one shell command in the session workspace and
// reports its combined output as a single command_response. The run is
// recorded in the task ledger.
func (c *Coordinator) HandleCommand(ctx context.Context, s *Session, sender Sender, command string) {
	if err := validateCommand(command); err != nil {
		sender.Send(types.NewError(types.CodeInvalidRequest, fmt.Sprintf("invalid command: %v", err)))
		return
	}

	cmdCtx, done := s.track(ctx)
	defer done()

	task := c.tasks.Enqueue(classifyCommand(command), command, s.ID())
	c.tasks.Start(task.ID)

	result, err := supervisor.Run(cmdCtx, supervisor.Spec{
		Binary: shellBinary(),
		Args:   []string{"-c", command},
		Dir:    s.WorkspaceDir(),
	}, c.commandTimeout())

	taskResult := &types.TaskResult{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	}
	if err != nil {
		taskResult.Error = err.Error()
	}
	c.tasks.Finish(task.ID, taskResult, err == nil)
	s.Touch()

	if result.TimedOut {
		msg := fmt.Sprintf("command timed out after %v", c.commandTimeout())
		if partial := strings.TrimSpace(result.Stdout + result.Stderr); partial != "" {
			msg += "; partial output:\n" + partial
		}
		sender.Send(types.NewError(types.CodeTimeout, msg))
		return
	}
	if err != nil && result.ExitCode == 0 {
		c.sendError(sender, err)
		return
	}

	output := result.Stdout
	if result.Stderr != "" {
		output += result.Stderr
	}
	sender.Send(types.NewCommandResponse(output, result.ExitCode))
}

// HandleFileOp performs one workspace file operation. Paths resolve under
// the projects root; anything escaping it is rejected before I/O.
func (c *Coordinator) HandleFileOp(ctx context.Context, s *Session, sender Sender, op, path, data string) {
	switch op {
	case "read":
		content, err := c.ws.Read(path)
		if err != nil {
			c.sendError(sender, err)
			return
		}
		raw, _ := json.Marshal(string(content))
		sender.Send(types.NewFileResponse(op, path, raw, "ok"))

	case "write":
		if err := c.ws.Write(path, []byte(data)); err != nil {
			c.sendError(sender, err)
			return
		}
		c.publishFileEdited(path, s.ID())
		sender.Send(types.NewFileResponse(op, path, nil, "ok"))

	case "list":
		entries, err := c.ws.List(path)
		if err != nil {
			c.sendError(sender, err)
			return
		}
		raw, _ := json.Marshal(entries)
		sender.Send(types.NewFileResponse(op, path, raw, "ok"))

	case "delete":
		if err := c.ws.Delete(path); err != nil {
			c.sendError(sender, err)
			return
		}
		sender.Send(types.NewFileResponse(op, path, nil, "ok"))

	default:
		sender.Send(types.NewError(types.CodeInvalidRequest, fmt.Sprintf("unknown file operation %q", op)))
	}
}

// HandleGetTasks sends one snapshot of the session's ledger entries,
// newest first.
func (c *Coordinator) HandleGetTasks(s *Session, sender Sender) {
	sender.Send(types.NewTaskQueue(c.tasks.Snapshot(ledger.Filter{SessionID: s.ID()})))
}

// HandleSquadCommand delegates to the orchestrator and wraps the result in
// a squad_response tagged with the originating operation.
func (c *Coordinator) HandleSquadCommand(ctx context.Context, s *Session, sender Sender, in *types.Inbound) {
	switch in.Operation {
	case "status":
		sender.Send(types.NewSquadResponse(in.Operation, c.squads.Status(ctx, in.AgentType)))

	case "list":
		sender.Send(types.NewSquadResponse(in.Operation, c.squads.List()))

	case "install":
		task := c.tasks.Enqueue(types.TaskKindInstall, fmt.Sprintf("install %s agent", in.AgentType), s.ID())
		c.tasks.Start(task.ID)
		result, err := c.squads.Install(ctx, in.AgentType)
		c.finishSquadTask(task.ID, result, err)
		if err != nil {
			c.sendError(sender, err)
			return
		}
		sender.Send(types.NewSquadResponse(in.Operation, result))

	case "create":
		task := c.tasks.Enqueue(types.TaskKindOther, fmt.Sprintf("create %s squad", in.AgentType), s.ID())
		c.tasks.Start(task.ID)
		session, err := c.squads.Create(ctx, squad.CreateRequest{
			Workspace:  in.Workspace,
			AgentType:  in.AgentType,
			Name:       in.Name,
			AutoAccept: in.AutoAccept,
			SessionID:  s.ID(),
		})
		if err != nil {
			c.tasks.Finish(task.ID, &types.TaskResult{Error: err.Error()}, false)
			c.sendError(sender, err)
			return
		}
		c.tasks.Finish(task.ID, &types.TaskResult{Stdout: session.ID}, true)
		sender.Send(types.NewSquadResponse(in.Operation, session))

	case "execute":
		if !s.begin() {
			sender.Send(types.NewError(types.CodeBusy, "a request is already in flight for this session"))
			return
		}
		defer s.end()

		execCtx, done := s.track(ctx)
		defer done()

		task := c.tasks.Enqueue(types.TaskKindAgentCommand, in.Command, s.ID())
		c.tasks.Start(task.ID)
		result, err := c.squads.Execute(execCtx, in.SquadID, in.Command, 0)
		c.finishSquadTask(task.ID, result, err)
		if err != nil {
			c.sendError(sender, err)
			return
		}
		sender.Send(types.NewSquadResponse(in.Operation, result))

	case "terminate":
		session, err := c.squads.Terminate(in.SquadID)
		if err != nil {
			c.sendError(sender, err)
			return
		}
		sender.Send(types.NewSquadResponse(in.Operation, session))

	default:
		sender.Send(types.NewError(types.CodeInvalidRequest, fmt.Sprintf("unknown squad operation %q", in.Operation)))
	}
}

// Detach cancels the session's in-flight chat and shell work. Squad
// sessions and running ledger tasks continue; their results stay
// queryable on reconnect. The session object is released once no task it
// started remains unfinished; re-attaching restores accounting from the
// persisted record.
func (c *Coordinator) Detach(s *Session) {
	s.detach()
	if c.tasks == nil || !c.tasks.HasPending(s.ID()) {
		c.registry.Release(s.ID())
	}
	logging.Debug().Str("sessionID", s.ID()).Msg("session detached")
}

func (c *Coordinator) finishSquadTask(taskID string, result *supervisor.Result, err error) {
	taskResult := &types.TaskResult{}
	if result != nil {
		taskResult.Stdout = result.Stdout
		taskResult.Stderr = result.Stderr
		taskResult.ExitCode = result.ExitCode
	}
	if err != nil {
		taskResult.Error = err.Error()
	}
	c.tasks.Finish(taskID, taskResult, err == nil)
}

func (c *Coordinator) buildMessages(s *Session, content string, editorCtx *types.EditorContext) []*schema.Message {
	messages := []*schema.Message{schema.SystemMessage(systemPrompt)}
	for _, exchange := range s.History() {
		messages = append(messages,
			schema.UserMessage(exchange.Request),
			schema.AssistantMessage(exchange.Response, nil),
		)
	}

	prompt := content
	if editorCtx != nil {
		ec := editorCtx.Truncated()
		prompt = fmt.Sprintf("%s\n\nActive file: %s (%s)\n```\n%s\n```", content, ec.Path, ec.Language, ec.Preview)
	}
	return append(messages, schema.UserMessage(prompt))
}

func (c *Coordinator) maxTokens(providerID string) int {
	if c.cfg != nil {
		if pc, ok := c.cfg.Provider[providerID]; ok && pc.MaxTokens > 0 {
			return pc.MaxTokens
		}
	}
	return defaultMaxTokens
}

func (c *Coordinator) commandTimeout() time.Duration {
	if c.cfg != nil && c.cfg.CommandTimeoutMS > 0 {
		return time.Duration(c.cfg.CommandTimeoutMS) * time.Millisecond
	}
	return supervisor.DefaultRunTimeout
}

func (c *Coordinator) publishFileEdited(path, sessionID string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(event.Event{
		Type: event.FileEdited,
		Data: event.FileEditedData{Path: path, SessionID: sessionID},
	})
}

func (c *Coordinator) sendError(sender Sender, err error) {
	sender.Send(types.NewError(ErrorCode(err), err.Error()))
}

// ErrorCode maps an internal error to its protocol error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, workspace.ErrForbidden):
		return types.CodeForbidden
	case errors.Is(err, squad.ErrUnsupportedAgent):
		return types.CodeUnsupportedAgent
	case errors.Is(err, squad.ErrSpawnFailed):
		return types.CodeSpawnFailed
	case errors.Is(err, squad.ErrSquadNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, ledger.ErrTaskNotFound),
		errors.Is(err, fs.ErrNotExist):
		return types.CodeNotFound
	case errors.Is(err, squad.ErrNotRunning),
		errors.Is(err, ErrInvalidSessionID):
		return types.CodeInvalidRequest
	case errors.Is(err, context.DeadlineExceeded):
		return types.CodeTimeout
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		return types.CodeProviderError
	}
	return types.CodeInternalError
}

// validateCommand parses the command with a POSIX shell grammar before it
// is handed to a subprocess.
func validateCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return errors.New("empty command")
	}
	_, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	return err
}

// classifyCommand buckets a shell command for the task ledger.
func classifyCommand(command string) types.TaskKind {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return types.TaskKindOther
	}

	joined := strings.Join(fields, " ")
	switch {
	case strings.Contains(joined, "install"):
		return types.TaskKindInstall
	case strings.Contains(joined, "test"):
		return types.TaskKindTest
	case strings.Contains(joined, "build"):
		return types.TaskKindBuild
	default:
		return types.TaskKindOther
	}
}

func shellBinary() string {
	if s := os.Getenv("SHELL"); s != "" && runtime.GOOS != "windows" {
		return s
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}
