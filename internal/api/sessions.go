package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/olistqa/olistqa/internal/assistant"
	"github.com/olistqa/olistqa/internal/auth"
	"github.com/olistqa/olistqa/internal/chart"
	"github.com/olistqa/olistqa/internal/query"
	"github.com/olistqa/olistqa/internal/session"
)

const maxTurnBodyBytes = 64 << 10

type turnRequest struct {
	Question string `json:"question"`
}

type turnView struct {
	TurnID    string         `json:"turn_id"`
	Seq       int            `json:"seq"`
	Question  string         `json:"question"`
	Summary   *string        `json:"summary"`
	Status    session.Status `json:"status"`
	SQL       string         `json:"sql,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type sessionResponse struct {
	SessionID string     `json:"session_id"`
	CreatedAt time.Time  `json:"created_at"`
	Turns     []turnView `json:"turns"`
}

type outcomeView struct {
	Status       session.Status  `json:"status"`
	GeneratedSQL string          `json:"generated_sql,omitempty"`
	RepairedSQL  string          `json:"repaired_sql,omitempty"`
	ExecutedSQL  string          `json:"executed_sql,omitempty"`
	Attempts     int             `json:"attempts"`
	Columns      []string        `json:"columns"`
	Rows         [][]any         `json:"rows"`
	TotalRows    int             `json:"total_rows"`
	Chart        *chart.BarChart `json:"chart,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Message      string          `json:"message,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
}

type turnResponse struct {
	SessionID string      `json:"session_id"`
	Turn      turnView    `json:"turn"`
	Outcome   outcomeView `json:"outcome"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Conversations == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "conversation service is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAnalyst); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	created, err := deps.Conversations.CreateSession(r.Context(), auth.Owner(r))
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, presentSession(created))
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Conversations == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "conversation service is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAnalyst); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("session"))
	current, err := deps.Conversations.History(r.Context(), sessionID, auth.Owner(r))
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentSession(current))
}

func handleCreateTurn(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Conversations == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "conversation service is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAnalyst); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request turnRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTurnBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid turn request body", false, map[string]any{"details": err.Error()})
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("session"))
	result, err := deps.Conversations.HandleTurn(r.Context(), sessionID, auth.Owner(r), request.Question)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{
		SessionID: result.SessionID,
		Turn:      presentTurn(result.Turn),
		Outcome:   presentOutcome(result.Outcome),
	})
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assistant.ErrInvalidQuestion):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_QUESTION", err.Error(), false, nil)
	case errors.Is(err, session.ErrNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": r.PathValue("session")})
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_STORE_ERROR", "failed to process session request", true, map[string]any{"details": err.Error()})
	}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func presentSession(value session.Session) sessionResponse {
	turns := make([]turnView, 0, len(value.Turns))
	for _, turn := range value.Turns {
		turns = append(turns, presentTurn(turn))
	}
	return sessionResponse{SessionID: value.ID, CreatedAt: value.CreatedAt, Turns: turns}
}

func presentTurn(turn session.Turn) turnView {
	return turnView{
		TurnID:    turn.ID,
		Seq:       turn.Seq,
		Question:  turn.Question,
		Summary:   turn.Summary,
		Status:    turn.Status,
		SQL:       turn.SQL,
		CreatedAt: turn.CreatedAt,
	}
}

func presentOutcome(outcome assistant.Outcome) outcomeView {
	columns := outcome.Columns
	if columns == nil {
		columns = []string{}
	}
	return outcomeView{
		Status:       outcome.Status,
		GeneratedSQL: outcome.GeneratedSQL,
		RepairedSQL:  outcome.RepairedSQL,
		ExecutedSQL:  outcome.ExecutedSQL,
		Attempts:     outcome.Attempts,
		Columns:      columns,
		Rows:         presentRows(outcome.Rows),
		TotalRows:    outcome.TotalRows,
		Chart:        presentChart(outcome.Chart),
		Summary:      outcome.Summary,
		Message:      outcome.Message,
		Warnings:     outcome.Warnings,
		DurationMs:   outcome.Duration.Milliseconds(),
	}
}

// presentChart drops points JSON cannot carry; a chart left with no points
// is omitted.
func presentChart(barChart *chart.BarChart) *chart.BarChart {
	if barChart == nil {
		return nil
	}
	out := *barChart
	out.Labels = make([]string, 0, len(barChart.Values))
	out.Values = make([]float64, 0, len(barChart.Values))
	for i, value := range barChart.Values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		label := ""
		if i < len(barChart.Labels) {
			label = barChart.Labels[i]
		}
		out.Labels = append(out.Labels, label)
		out.Values = append(out.Values, value)
	}
	if len(out.Values) == 0 {
		return nil
	}
	return &out
}

func presentRows(rows [][]any) [][]any {
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		values := make([]any, len(row))
		for i, value := range row {
			values[i] = presentValue(value)
		}
		out = append(out, values)
	}
	return out
}

// presentValue keeps JSON-native scalars and renders everything else as text.
func presentValue(value any) any {
	switch typed := value.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return typed
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case float32:
		if math.IsNaN(float64(typed)) || math.IsInf(float64(typed), 0) {
			return nil
		}
		return typed
	default:
		return query.FormatValue(typed)
	}
}
