package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultShell     = "/bin/sh"
	DefaultWaitDelay = 2 * time.Second
)

// Options describes the process to start.
type Options struct {
	// CommandLine is passed to the shell as a single -c argument, so quoting and word splitting are up to the shell.
	CommandLine string
	// Shell defaults to DefaultShell.
	Shell string
	// Env entries are appended to the environment of the current process.
	Env []string
	Dir string
	// WaitDelay bounds how long Wait waits for I/O after the process has exited or been killed,
	// and how long a killed process has to exit. Defaults to DefaultWaitDelay.
	WaitDelay time.Duration

	// Stdin, Stdout and Stderr are copied by Wait, so WaitDelay bounds the copying.
	// When one is nil, the matching pipe is exposed on the Handle instead and the caller must drive it.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Log *zap.SugaredLogger
}

// StartError is returned by Start when the process could not be started at all.
// Its message is the operating system's message, unmodified.
type StartError struct {
	CommandLine string
	Err         error
}

func (e *StartError) Error() string { return e.Err.Error() }

func (e *StartError) Unwrap() error { return e.Err }

// Result describes how a process terminated.
type Result struct {
	// ExitCode is -1 if the process was terminated by a signal.
	ExitCode int
	TimeMS   int64
	// Canceled is true if the process group was signaled because the context passed to Start was done.
	// The process may still have exited on its own first, check Success.
	Canceled bool

	state *os.ProcessState
}

func (r *Result) Success() bool { return r.state != nil && r.state.Success() }

// String describes the termination, such as "exit status 3" or "signal: killed".
func (r *Result) String() string {
	if r.state == nil {
		return "process did not exit"
	}
	return r.state.String()
}

// Handle is a started process.
type Handle struct {
	ID  string
	PID int

	// Stdin, Stdout and Stderr are nil when the matching Options field was set.
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	log      *zap.SugaredLogger
	cmd      *exec.Cmd
	start    time.Time
	canceled atomic.Bool
	reaped   atomic.Bool
}

// Start starts the command line under the configured shell.
// The process group is killed when ctx is done.
func Start(ctx context.Context, opts Options) (*Handle, error) {
	shell := opts.Shell
	if shell == "" {
		shell = DefaultShell
	}
	waitDelay := opts.WaitDelay
	if waitDelay == 0 {
		waitDelay = DefaultWaitDelay
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	h := &Handle{ID: uuid.New().String()}

	cmd := exec.CommandContext(ctx, shell, "-c", opts.CommandLine)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		err := killProcessGroup(cmd)
		if err == nil {
			h.canceled.Store(true)
		}
		return err
	}
	cmd.WaitDelay = waitDelay
	h.cmd = cmd

	var err error
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	} else if h.Stdin, err = cmd.StdinPipe(); err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	} else if h.Stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	} else if h.Stderr, err = cmd.StderrPipe(); err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	h.start = time.Now()
	// Start closes all pipes on failure.
	err = cmd.Start()
	if err != nil {
		return nil, &StartError{CommandLine: opts.CommandLine, Err: err}
	}
	h.PID = cmd.Process.Pid
	h.log = log.Named("process").With("ProcessID", h.ID, "PID", h.PID)
	h.log.Debugw("process started", "Shell", shell, "CommandLine", opts.CommandLine)

	return h, nil
}

// Wait waits for the process to exit and releases its resources.
// Pipes exposed on the Handle must have been read to completion before calling Wait.
// A non-zero exit is reported in the Result, not as an error.
//
// If descendants of the process still hold its output open after it exits, Wait gives up on them after WaitDelay,
// kills the rest of the process group and returns exec.ErrWaitDelay along with the Result.
func (h *Handle) Wait() (*Result, error) {
	err := h.cmd.Wait()
	h.reaped.Store(true)
	res := &Result{
		ExitCode: h.cmd.ProcessState.ExitCode(),
		TimeMS:   time.Since(h.start).Milliseconds(),
		Canceled: h.canceled.Load(),
		state:    h.cmd.ProcessState,
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		err = nil
	case res.Success() && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		// the process finished on its own before the kill landed
		err = nil
	case errors.Is(err, exec.ErrWaitDelay):
		// the lingering members still hold our pipes, which keeps the group ID allocated
		if killErr := killProcessGroup(h.cmd); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			h.log.Debugw("error killing lingering process group", "Error", killErr)
		}
	}
	h.log.Debugw("process exited", "Result", res.String(), "TimeMS", res.TimeMS, "Canceled", res.Canceled, "Error", err)
	return res, err
}

// Kill kills the process and every process in its group.
// It is a no-op once Wait has reaped the process, since the group ID may then belong to someone else.
func (h *Handle) Kill() error {
	if h.reaped.Load() {
		return nil
	}
	err := killProcessGroup(h.cmd)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
