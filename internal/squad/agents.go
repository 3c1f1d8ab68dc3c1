package squad

import (
	"fmt"

	"github.com/codesquad-ai/codesquad/internal/supervisor"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

// agentSpec describes how to drive one supported agent backend. The set of
// backends is closed; "auto" resolves to the first installed entry of
// autoOrder at create time.
type agentSpec struct {
	binary     string
	display    string
	versionArg string
	install    supervisor.Spec
	// launchArgs builds the argument list for the long-lived workspace
	// process started by Create.
	launchArgs func(autoAccept bool) []string
	// execArgs builds the argument list for a one-shot command sent
	// through Execute.
	execArgs func(command string, autoAccept bool) []string
}

var autoOrder = []types.AgentType{types.AgentClaudeCode, types.AgentAider, types.AgentCodex}

func builtinAgents() map[types.AgentType]agentSpec {
	return map[types.AgentType]agentSpec{
		types.AgentClaudeCode: {
			binary:     "claude",
			display:    "Claude Code",
			versionArg: "--version",
			install: supervisor.Spec{
				Binary: "npm",
				Args:   []string{"install", "-g", "@anthropic-ai/claude-code"},
			},
			launchArgs: func(autoAccept bool) []string {
				if autoAccept {
					return []string{"--dangerously-skip-permissions"}
				}
				return nil
			},
			execArgs: func(command string, autoAccept bool) []string {
				args := []string{"-p", command}
				if autoAccept {
					args = append(args, "--dangerously-skip-permissions")
				}
				return args
			},
		},
		types.AgentAider: {
			binary:     "aider",
			display:    "Aider",
			versionArg: "--version",
			install: supervisor.Spec{
				Binary: "python3",
				Args:   []string{"-m", "pip", "install", "--upgrade", "aider-chat"},
			},
			launchArgs: func(autoAccept bool) []string {
				if autoAccept {
					return []string{"--yes-always"}
				}
				return nil
			},
			execArgs: func(command string, autoAccept bool) []string {
				args := []string{"--message", command, "--no-stream"}
				if autoAccept {
					args = append(args, "--yes-always")
				}
				return args
			},
		},
		types.AgentCodex: {
			binary:     "codex",
			display:    "Codex CLI",
			versionArg: "--version",
			install: supervisor.Spec{
				Binary: "npm",
				Args:   []string{"install", "-g", "@openai/codex"},
			},
			launchArgs: func(autoAccept bool) []string {
				if autoAccept {
					return []string{"--full-auto"}
				}
				return nil
			},
			execArgs: func(command string, autoAccept bool) []string {
				args := []string{"exec", command}
				if autoAccept {
					args = append(args, "--full-auto")
				}
				return args
			},
		},
	}
}

// resolveAgent maps a requested agent type to a concrete spec. Auto picks
// the first installed backend in autoOrder.
func (o *Orchestrator) resolveAgent(agentType types.AgentType) (types.AgentType, agentSpec, error) {
	if agentType == "" {
		agentType = o.defaultAgent
	}

	if agentType == types.AgentAuto {
		for _, candidate := range autoOrder {
			spec := o.specs[candidate]
			if supervisor.Installed(spec.binary) {
				return candidate, spec, nil
			}
		}
		return "", agentSpec{}, fmt.Errorf("%w: no agent backend installed", ErrUnsupportedAgent)
	}

	spec, ok := o.specs[agentType]
	if !ok {
		return "", agentSpec{}, fmt.Errorf("%w: %s", ErrUnsupportedAgent, agentType)
	}
	return agentType, spec, nil
}
