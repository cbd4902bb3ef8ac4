package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name      string
		output    []byte
		err       error
		expStatus int
		expBody   string
	}{
		{
			name:      "success",
			output:    []byte(`{"a":1}`),
			expStatus: http.StatusOK,
			expBody:   `{"a":1}`,
		},
		{
			name:      "input parse failure",
			err:       &InputParseError{Err: errors.New("invalid character 'I' looking for beginning of value")},
			expStatus: http.StatusInternalServerError,
			expBody:   "Internal Server Error: unable to parse request body as JSON: invalid character 'I' looking for beginning of value",
		},
		{
			name:      "launch failure",
			err:       &LaunchError{Err: errors.New("fork/exec /nope: no such file or directory")},
			expStatus: http.StatusInternalServerError,
			expBody:   "Internal Server Error: fork/exec /nope: no such file or directory",
		},
		{
			name:      "process failure",
			err:       &ProcessError{ExitCode: 127, Message: "/bin/sh: boom: command not found"},
			expStatus: http.StatusInternalServerError,
			expBody:   "Internal Server Error: /bin/sh: boom: command not found",
		},
		{
			name:      "wrapped process failure",
			err:       fmt.Errorf("running: %w", &ProcessError{ExitCode: 1, Message: "nope"}),
			expStatus: http.StatusInternalServerError,
			expBody:   "Internal Server Error: running: nope",
		},
		{
			name:      "timeout",
			err:       &TimeoutError{Timeout: 30 * time.Second},
			expStatus: http.StatusGatewayTimeout,
			expBody:   "Gateway Timeout: process did not exit within 30s",
		},
		{
			name:      "body too large",
			err:       &BodyTooLargeError{Limit: 10},
			expStatus: http.StatusRequestEntityTooLarge,
			expBody:   "Request Entity Too Large: request body exceeds 10 bytes",
		},
		{
			name:      "canceled",
			err:       context.Canceled,
			expStatus: http.StatusServiceUnavailable,
			expBody:   "Service Unavailable: context canceled",
		},
		{
			name:      "unexpected error",
			err:       errors.New("reading request body: unexpected EOF"),
			expStatus: http.StatusInternalServerError,
			expBody:   "Internal Server Error: reading request body: unexpected EOF",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := Translate(c.output, c.err)
			assert.Equal(t, c.expStatus, resp.StatusCode)
			assert.Equal(t, c.expBody, string(resp.Body))

			rec := httptest.NewRecorder()
			require.NoError(t, resp.Send(rec))
			assert.Equal(t, c.expStatus, rec.Code)
			assert.Equal(t, c.expBody, rec.Body.String())
			if c.err == nil {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			} else {
				assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
				assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			}
		})
	}
}

func TestTranslateSuccessIsValidJSONPassthrough(t *testing.T) {
	resp := Translate([]byte(`{"apiVersion":"v1","input":{"hello":"world"},"kind":"Echo"}`), nil)
	var v map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &v))
	assert.Equal(t, "Echo", v["kind"])
}
