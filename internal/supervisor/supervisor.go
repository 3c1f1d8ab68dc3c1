// Package supervisor spawns and oversees external agent processes. It
// covers two shapes of work: long-lived supervised processes (Spawn) and
// one-shot commands with captured output (Run).
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/codesquad-ai/codesquad/internal/logging"
)

const (
	DefaultRunTimeout = 120 * time.Second
	MaxRunTimeout     = 10 * time.Minute
	ProbeTimeout      = 10 * time.Second

	// MaxOutputBytes bounds captured process output.
	MaxOutputBytes = 30000
)

// ErrNotInstalled is returned by Probe when the binary is not on PATH.
var ErrNotInstalled = errors.New("binary not installed")

// Spec describes a process to launch.
type Spec struct {
	Binary string
	Args   []string
	Dir    string
	// Env entries are appended to the parent environment.
	Env []string
}

func (s Spec) command(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, s.Binary, s.Args...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)
	setProcessGroup(cmd)
	return cmd
}

// String renders the spec as a display command line.
func (s Spec) String() string {
	if len(s.Args) == 0 {
		return s.Binary
	}
	return s.Binary + " " + strings.Join(s.Args, " ")
}

// Process is a long-lived supervised child process.
type Process struct {
	cmd     *exec.Cmd
	out     *boundedBuffer
	done    chan struct{}
	waitErr error
}

// Spawn starts a long-lived process in its own process group, with stdout
// and stderr captured into a bounded buffer.
func Spawn(spec Spec) (*Process, error) {
	cmd := spec.command(context.Background())
	out := newBoundedBuffer(MaxOutputBytes)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", spec.Binary, err)
	}

	p := &Process{cmd: cmd, out: out, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	logging.Debug().Str("binary", spec.Binary).Int("pid", p.PID()).Msg("process spawned")
	return p, nil
}

// PID returns the process ID.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Running reports whether the process has not yet exited.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Output returns the captured combined output so far.
func (p *Process) Output() string { return p.out.String() }

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitError returns the wait error once the process has exited, nil while
// it is still running.
func (p *Process) ExitError() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Signal delivers sig to the whole process group.
func (p *Process) Signal(sig syscall.Signal) error {
	return signalGroup(p.cmd, sig)
}

// Stop terminates the process: SIGTERM first, then SIGKILL once the grace
// period expires. It returns after the process has exited.
func (p *Process) Stop(grace time.Duration) error {
	if !p.Running() {
		return nil
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		logging.Debug().Err(err).Int("pid", p.PID()).Msg("term signal failed")
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	logging.Warn().Int("pid", p.PID()).Msg("process ignored SIGTERM, killing")
	if err := p.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill pid %d: %w", p.PID(), err)
	}
	<-p.done
	return nil
}

// Result is the captured outcome of a one-shot Run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Run executes spec to completion with a timeout, capturing stdout and
// stderr separately. On timeout or non-zero exit the partial output is
// still returned alongside the error.
func Run(ctx context.Context, spec Spec, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	if timeout > MaxRunTimeout {
		timeout = MaxRunTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := spec.command(runCtx)
	stdout := newBoundedBuffer(MaxOutputBytes)
	stderr := newBoundedBuffer(MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error { return signalGroup(cmd, syscall.SIGKILL) }

	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: runCtx.Err() == context.DeadlineExceeded,
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if result.TimedOut {
		return result, fmt.Errorf("%s: timed out after %v", spec.Binary, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("%s: exit %d", spec.Binary, result.ExitCode)
		}
		return result, fmt.Errorf("run %s: %w", spec.Binary, err)
	}
	return result, nil
}

// Probe checks whether binary is on PATH and reports its version by
// running it with versionArg (defaulting to --version).
func Probe(ctx context.Context, binary, versionArg string) (string, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotInstalled, binary)
	}
	if versionArg == "" {
		versionArg = "--version"
	}

	result, err := Run(ctx, Spec{Binary: binary, Args: []string{versionArg}}, ProbeTimeout)
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", binary, err)
	}

	version := strings.TrimSpace(result.Stdout)
	if version == "" {
		version = strings.TrimSpace(result.Stderr)
	}
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = version[:i]
	}
	return version, nil
}

// Installed reports whether binary is on PATH.
func Installed(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

func setProcessGroup(cmd *exec.Cmd) {
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
}

// signalGroup signals the whole process group so children spawned by the
// agent are covered too.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	if runtime.GOOS == "windows" {
		return cmd.Process.Kill()
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}
