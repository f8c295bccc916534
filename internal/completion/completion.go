package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoAnswer reports a response that parsed but carried no text.
var ErrNoAnswer = errors.New("completion: no answer produced")

// Client sends a prompt to a text-generation service and returns its raw text.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion request failed status=%d body=%s", e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

func New(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "gemini":
		client, err := NewGeminiClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "openai":
		client, err := NewOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}

const maxErrorBody = 2048

func truncateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		return text[:maxErrorBody] + "..."
	}
	return text
}
