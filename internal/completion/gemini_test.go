package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiCompleteSendsContentsAndExtractsText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"SELECT 1"}]}}]}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(Config{BaseURL: server.URL, APIKey: "k-123", Model: "gemini-test"})
	if err != nil {
		t.Fatalf("NewGeminiClient() error = %v", err)
	}
	text, err := client.Complete(context.Background(), "how many orders?")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "SELECT 1" {
		t.Fatalf("text = %q", text)
	}
	if gotPath != "/v1/models/gemini-test:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "k-123" {
		t.Fatalf("key = %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Role != "user" || gotBody.Contents[0].Parts[0].Text != "how many orders?" {
		t.Fatalf("request body = %+v", gotBody)
	}
}

func TestGeminiCompleteTreatsMissingFieldsAsNoAnswer(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"candidates":[]}`,
		`{"candidates":[{}]}`,
		`{"candidates":[{"content":{"parts":[]}}]}`,
		`{"candidates":[{"content":{"parts":[{}]}}]}`,
		`{"promptFeedback":{"blockReason":"SAFETY"}}`,
	}
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		client, err := NewGeminiClient(Config{BaseURL: server.URL, APIKey: "k"})
		if err != nil {
			t.Fatalf("NewGeminiClient() error = %v", err)
		}
		_, err = client.Complete(context.Background(), "p")
		server.Close()
		if !errors.Is(err, ErrNoAnswer) {
			t.Fatalf("body %s: error = %v, want ErrNoAnswer", body, err)
		}
	}
}

func TestGeminiCompleteReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(Config{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewGeminiClient() error = %v", err)
	}
	_, err = client.Complete(context.Background(), "p")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if statusErr.HTTPStatusCode() != http.StatusTooManyRequests {
		t.Fatalf("status = %d", statusErr.StatusCode)
	}
	if !strings.Contains(statusErr.Body, "quota") {
		t.Fatalf("body = %q", statusErr.Body)
	}
}

func TestGeminiCompleteMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(Config{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewGeminiClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestGeminiTransportErrorRedactsKey(t *testing.T) {
	client, err := NewGeminiClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "super-secret"})
	if err != nil {
		t.Fatalf("NewGeminiClient() error = %v", err)
	}
	_, err = client.Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "super-secret") {
		t.Fatalf("error leaks api key: %v", err)
	}
}

func TestNewGeminiClientRequiresAPIKey(t *testing.T) {
	if _, err := NewGeminiClient(Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
