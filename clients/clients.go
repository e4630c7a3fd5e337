// Package clients adapts the remote model services (speech recognition, face embedding, facial
// landmarks, summarization and visualization) to the meeting provider interfaces.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maastricht-university/meetsync/meeting"
)

const maxErrBody = 512

type HTTP struct{ c *http.Client }

func NewHTTP() *HTTP { return &HTTP{c: &http.Client{Timeout: 60 * time.Second}} }

// NewHTTPWithClient wraps an existing client, e.g. one with a custom transport.
func NewHTTPWithClient(c *http.Client) *HTTP {
	if c == nil {
		return NewHTTP()
	}
	return &HTTP{c: c}
}

// StatusError is returned for any non-200 answer of a service.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return meeting.ErrProvider }

// providerErr tags transport failures as provider errors while keeping context errors visible.
func providerErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(meeting.ErrProvider, err))
}

func (h *HTTP) do(req *http.Request, op string, out any) error {
	resp, err := h.c.Do(req)
	if err != nil {
		return providerErr(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return providerErr(op+" decode", err)
	}
	return nil
}

func (h *HTTP) postJSON(ctx context.Context, url, op string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s encode: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req, op, out)
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
