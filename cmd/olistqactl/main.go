package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olistqa/olistqa/internal/cli/olistqactl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("OLISTQA_CLI_TIMEOUT")), 120*time.Second)
	options := olistqactl.Options{
		BaseURL:   envOr("OLISTQA_API_URL", "http://localhost:8080"),
		APIKey:    strings.TrimSpace(os.Getenv("OLISTQA_API_KEY")),
		User:      strings.TrimSpace(os.Getenv("OLISTQA_USER")),
		SessionID: strings.TrimSpace(os.Getenv("OLISTQA_SESSION")),
		Timeout:   timeout,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := olistqactl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid OLISTQA_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
