package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/guseggert/httpexec/bridge/process"
	"go.uber.org/zap"
)

// Bridge runs the configured command once per request body.
type Bridge struct {
	log *zap.SugaredLogger
	cfg Config
}

func NewBridge(log *zap.SugaredLogger, cfg Config) *Bridge {
	return &Bridge{log: log.Named("bridge"), cfg: cfg.withDefaults()}
}

// Handle validates body, runs the command with body as its stdin, and returns the command's stdout.
// Errors are either a Failure or, if ctx was canceled before the command exited, ctx.Err().
// The command has always been reaped by the time Handle returns.
func (b *Bridge) Handle(ctx context.Context, requestID string, body []byte) ([]byte, error) {
	log := b.log.With("RequestID", requestID)

	// validate before spawning, so malformed input never costs a process
	err := json.Unmarshal(body, new(json.RawMessage))
	if err != nil {
		log.Debugw("rejecting request body", "Error", err)
		return nil, &InputParseError{Err: err}
	}

	runCtx := ctx
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	h, err := process.Start(runCtx, process.Options{
		CommandLine: b.cfg.AppCommand,
		Shell:       b.cfg.Shell,
		Env:         b.cfg.Env,
		Dir:         b.cfg.Dir,
		WaitDelay:   b.cfg.WaitDelay,
		Stdin:       bytes.NewReader(body),
		Stdout:      &stdout,
		Stderr:      &stderr,
		Log:         log,
	})
	if err != nil {
		log.Debugw("unable to start process", "Error", err)
		return nil, &LaunchError{Err: err}
	}

	res, waitErr := h.Wait()

	// a process that exited on its own wins over a deadline that expired while it was exiting
	if res.Canceled && !res.Success() {
		if ctx.Err() != nil {
			log.Debugw("request canceled, process killed", "Error", ctx.Err())
			return nil, ctx.Err()
		}
		log.Infow("process timed out", "Timeout", b.cfg.Timeout)
		return nil, &TimeoutError{Timeout: b.cfg.Timeout}
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) && res.Success() {
		// the exit status is the app's answer, leftover background jobs don't change it
		log.Infow("process exited but descendants kept its output open, killed its process group", "WaitDelay", b.cfg.WaitDelay)
		waitErr = nil
	}
	if waitErr != nil {
		return nil, fmt.Errorf("waiting for process: %w", waitErr)
	}

	if !res.Success() {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = res.String()
		}
		log.Debugw("process failed", "Result", res.String(), "Stderr", msg)
		return nil, &ProcessError{ExitCode: res.ExitCode, Message: msg}
	}

	if stderr.Len() > 0 {
		log.Debugw("process succeeded with stderr output", "Stderr", stderr.String())
	}
	return stdout.Bytes(), nil
}

// IsFailure reports whether err is one of the bridge's Failure types.
func IsFailure(err error) bool {
	var f Failure
	return errors.As(err, &f)
}
