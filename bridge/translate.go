package bridge

import (
	"context"
	"errors"
	"net/http"
)

// Response is an HTTP response produced from a bridge outcome.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Translate converts the outcome of Bridge.Handle into an HTTP response.
// Error bodies have the form "<status text>: <message>".
func Translate(output []byte, err error) Response {
	if err == nil {
		return Response{
			StatusCode:  http.StatusOK,
			ContentType: DefaultResponseContentType,
			Body:        output,
		}
	}

	var (
		status        = http.StatusInternalServerError
		parseErr      *InputParseError
		launchErr     *LaunchError
		processErr    *ProcessError
		timeoutErr    *TimeoutError
		bodyTooBigErr *BodyTooLargeError
	)
	switch {
	case errors.As(err, &parseErr), errors.As(err, &launchErr), errors.As(err, &processErr):
	case errors.As(err, &timeoutErr):
		status = http.StatusGatewayTimeout
	case errors.As(err, &bodyTooBigErr):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled):
		// nobody is listening anymore, but the status still shows up in logs
		status = http.StatusServiceUnavailable
	}

	return Response{
		StatusCode:  status,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(http.StatusText(status) + ": " + err.Error()),
	}
}

// Send writes the response. Error bodies are written as-is, without the trailing newline http.Error would add.
func (r Response) Send(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", r.ContentType)
	if r.StatusCode != http.StatusOK {
		w.Header().Set("X-Content-Type-Options", "nosniff")
	}
	w.WriteHeader(r.StatusCode)
	_, err := w.Write(r.Body)
	return err
}
