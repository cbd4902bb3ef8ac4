package bridge

import (
	"fmt"
	"time"
)

// Failure is the closed set of ways a request can fail in the bridge.
// Translate maps each of them to an HTTP response.
type Failure interface {
	error
	failure()
}

// InputParseError means the request body was not valid JSON. The command was never started.
type InputParseError struct {
	Err error
}

func (e *InputParseError) Error() string {
	return "unable to parse request body as JSON: " + e.Err.Error()
}

func (e *InputParseError) Unwrap() error { return e.Err }

// LaunchError means the command could not be started at all.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string { return e.Err.Error() }

func (e *LaunchError) Unwrap() error { return e.Err }

// ProcessError means the command started but exited non-zero or was killed by a signal.
type ProcessError struct {
	ExitCode int
	// Message is what the process wrote to stderr, or a description of the exit status if stderr was empty.
	Message string
}

func (e *ProcessError) Error() string { return e.Message }

// TimeoutError means the command did not exit within the configured timeout and was killed.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process did not exit within %s", e.Timeout)
}

// BodyTooLargeError means the request body exceeded the configured limit. The command was never started.
type BodyTooLargeError struct {
	Limit int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("request body exceeds %d bytes", e.Limit)
}

func (*InputParseError) failure()   {}
func (*LaunchError) failure()       {}
func (*ProcessError) failure()      {}
func (*TimeoutError) failure()      {}
func (*BodyTooLargeError) failure() {}
