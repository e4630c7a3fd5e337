package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maastricht-university/meetsync/meeting"
)

const (
	defaultSummaryTimeout = 2 * time.Minute
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

type SummarizerConfig struct {
	URL      string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
	Retries  int
}

// Summarizer implements meeting.Summarizer over an OpenAI-compatible chat completion API.
type Summarizer struct {
	cfg        SummarizerConfig
	httpClient *http.Client
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleeper    func(time.Duration)
}

type SummarizerOption func(*Summarizer)

func WithSummarizerHTTPClient(c *http.Client) SummarizerOption {
	return func(s *Summarizer) {
		if c != nil {
			s.httpClient = c
		}
	}
}

func WithRetryBackoff(base, max time.Duration) SummarizerOption {
	return func(s *Summarizer) {
		s.baseDelay = base
		s.maxDelay = max
	}
}

// WithSleeper replaces the retry sleep (tests).
func WithSleeper(sleeper func(time.Duration)) SummarizerOption {
	return func(s *Summarizer) { s.sleeper = sleeper }
}

func NewSummarizer(cfg SummarizerConfig, opts ...SummarizerOption) *Summarizer {
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSummaryTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	s := &Summarizer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseDelay:  defaultRetryBaseDelay,
		maxDelay:   defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type retryableError struct {
	err        error
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", errors.New("summarize: empty transcript")
	}
	if s.cfg.APIKey == "" {
		return "", fmt.Errorf("summarize: api key required: %w", meeting.ErrProvider)
	}
	payload := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a helpful assistant that summarizes meeting transcripts."},
			{Role: "user", Content: fmt.Sprintf("Please summarize the following meeting transcript in %s:\n\n%s", s.cfg.Language, transcript)},
		},
	}

	attempts := s.cfg.Retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := s.once(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err
		var re *retryableError
		if !errors.As(err, &re) || attempt == attempts || ctx.Err() != nil {
			break
		}
		delay := re.retryAfter
		if delay <= 0 {
			delay = s.backoff(attempt)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("summarize: %w", lastErr)
}

func (s *Summarizer) once(ctx context.Context, payload chatRequest) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &retryableError{err: providerErr("chat request", err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", providerErr("read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		serr := &StatusError{Op: "chat request", StatusCode: resp.StatusCode, Status: resp.Status, Body: snippet(body)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode >= http.StatusInternalServerError {
			return "", &retryableError{err: serr, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
		}
		return "", serr
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", providerErr("decode response", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("api error: %s: %w", strings.TrimSpace(out.Error.Message), meeting.ErrProvider)
	}
	for _, c := range out.Choices {
		if content := strings.TrimSpace(c.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", fmt.Errorf("empty completion: %w", meeting.ErrProvider)
}

func (s *Summarizer) backoff(attempt int) time.Duration {
	d := s.baseDelay
	for i := 1; i < attempt && d < s.maxDelay; i++ {
		d *= 2
	}
	if s.maxDelay > 0 && d > s.maxDelay {
		d = s.maxDelay
	}
	return d
}

func (s *Summarizer) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if s.sleeper != nil {
		s.sleeper(d)
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrBody {
		s = s[:maxErrBody] + "..."
	}
	return s
}

var _ meeting.Summarizer = (*Summarizer)(nil)
