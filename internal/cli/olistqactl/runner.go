package olistqactl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	User       string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks failures that happened after the command line was
// accepted; they exit 1 instead of the usage code 2.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

type runner struct {
	opts   Options
	client *http.Client
	json   bool
	stdout io.Writer
	stderr io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	r := &runner{opts: defaults, stdout: stdout, stderr: stderr}
	r.opts.BaseURL = firstNonEmpty(defaults.BaseURL, "http://localhost:8080")
	r.opts.Timeout = durationOr(defaults.Timeout, 120*time.Second)

	root := r.command()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			_, _ = fmt.Fprintln(stderr, reqErr.Error())
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return 0
}

func (r *runner) command() *cobra.Command {
	root := &cobra.Command{
		Use:           "olistqactl",
		Short:         "Ask questions about the Olist dataset through the olistqa API",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return errors.New("a command is required")
		},
		PersistentPreRun: func(*cobra.Command, []string) {
			r.client = r.opts.HTTPClient
			if r.client == nil {
				r.client = &http.Client{Timeout: r.opts.Timeout}
			}
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&r.opts.BaseURL, "base-url", r.opts.BaseURL, "olistqa API base URL")
	flags.StringVar(&r.opts.APIKey, "api-key", r.opts.APIKey, "API key for authenticated requests")
	flags.StringVar(&r.opts.SessionID, "session", r.opts.SessionID, "session id for history and ask")
	flags.StringVar(&r.opts.User, "user", r.opts.User, "X-User-ID owner header (used when auth is disabled)")
	flags.DurationVar(&r.opts.Timeout, "timeout", r.opts.Timeout, "HTTP timeout (e.g. 90s)")
	flags.BoolVar(&r.json, "json", false, "print raw JSON responses")

	root.AddCommand(
		r.passthrough("health", "Liveness of the API", "/v1/health"),
		r.passthrough("ready", "Readiness of the API and its dependencies", "/v1/ready"),
		r.datasetCommand(),
		r.sessionCommand(),
		r.historyCommand(),
		r.askCommand(),
	)
	return root
}

func (r *runner) passthrough(name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := r.call(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			r.printJSON(body)
			return nil
		},
	}
}

func (r *runner) datasetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dataset",
		Short: "Describe the loaded working table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := r.call(cmd.Context(), http.MethodGet, "/v1/dataset", nil)
			if err != nil {
				return err
			}
			if r.json {
				r.printJSON(body)
				return nil
			}
			var info datasetInfo
			if err := json.Unmarshal(body, &info); err != nil {
				return &requestError{err: fmt.Errorf("decode dataset response: %w", err)}
			}
			renderDataset(r.stdout, info)
			return nil
		},
	}
}

func (r *runner) sessionCommand() *cobra.Command {
	session := &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}
	session.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Start a new conversation and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, body, err := r.newSession(cmd.Context())
			if err != nil {
				return err
			}
			if r.json {
				r.printJSON(body)
				return nil
			}
			_, _ = fmt.Fprintln(r.stdout, id)
			return nil
		},
	})
	return session
}

func (r *runner) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the turns of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(r.opts.SessionID) == "" {
				return fmt.Errorf("--session is required")
			}
			body, err := r.call(cmd.Context(), http.MethodGet, "/v1/sessions/"+url.PathEscape(r.opts.SessionID), nil)
			if err != nil {
				return err
			}
			if r.json {
				r.printJSON(body)
				return nil
			}
			var current sessionView
			if err := json.Unmarshal(body, &current); err != nil {
				return &requestError{err: fmt.Errorf("decode session response: %w", err)}
			}
			renderHistory(r.stdout, current)
			return nil
		},
	}
	return cmd
}

func (r *runner) askCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question; starts a session when --session is empty",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is required")
			}
			sessionID := strings.TrimSpace(r.opts.SessionID)
			if sessionID == "" {
				id, _, err := r.newSession(cmd.Context())
				if err != nil {
					return err
				}
				sessionID = id
				_, _ = fmt.Fprintf(r.stderr, "session %s\n", sessionID)
			}
			payload, err := json.Marshal(map[string]string{"question": question})
			if err != nil {
				return err
			}
			body, err := r.call(cmd.Context(), http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/turns", payload)
			if err != nil {
				return err
			}
			if r.json {
				r.printJSON(body)
				return nil
			}
			var result turnResult
			if err := json.Unmarshal(body, &result); err != nil {
				return &requestError{err: fmt.Errorf("decode turn response: %w", err)}
			}
			renderOutcome(r.stdout, result.Outcome)
			return nil
		},
	}
	return cmd
}

func (r *runner) newSession(ctx context.Context) (string, []byte, error) {
	body, err := r.call(ctx, http.MethodPost, "/v1/sessions", nil)
	if err != nil {
		return "", nil, err
	}
	var created sessionView
	if err := json.Unmarshal(body, &created); err != nil {
		return "", nil, &requestError{err: fmt.Errorf("decode session response: %w", err)}
	}
	return created.SessionID, body, nil
}

func (r *runner) call(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	endpoint := strings.TrimRight(r.opts.BaseURL, "/") + path
	code, body, err := doRequest(ctx, r.client, method, endpoint, r.opts.APIKey, r.opts.User, payload)
	if err != nil {
		return nil, &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return nil, &requestError{err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))}
	}
	return body, nil
}

func (r *runner) printJSON(body []byte) {
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(r.stdout, pretty)
		return
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(r.stdout, string(body))
	}
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey, user string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if strings.TrimSpace(user) != "" {
		req.Header.Set("X-User-ID", strings.TrimSpace(user))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
