package common

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SSEWriter frames server-sent events onto an echo response.
type SSEWriter struct {
	resp *echo.Response
}

// NewSSE sets the stream headers and returns a writer. The X-Accel-
// Buffering header keeps nginx-style reverse proxies from buffering the
// stream.
func NewSSE(c echo.Context) *SSEWriter {
	resp := c.Response()
	h := resp.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	return &SSEWriter{resp: resp}
}

// SendJSON writes one named event with a JSON payload and flushes it.
func (s *SSEWriter) SendJSON(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.resp, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.resp.Flush()
	return nil
}

// SendComment writes a comment line, useful as a keepalive.
func (s *SSEWriter) SendComment(text string) error {
	if _, err := fmt.Fprintf(s.resp, ": %s\n\n", text); err != nil {
		return err
	}
	s.resp.Flush()
	return nil
}
