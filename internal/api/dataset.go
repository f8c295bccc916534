package api

import (
	"net/http"
	"time"
)

type datasetResponse struct {
	Table          string     `json:"table"`
	Columns        []string   `json:"columns"`
	RowCount       int64      `json:"row_count"`
	MaxTimestamp   *time.Time `json:"max_timestamp"`
	DataCoversUpTo string     `json:"data_covers_up_to,omitempty"`
}

func handleDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dataset == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASET_NOT_CONFIGURED", "working table is not configured", false, nil)
		return
	}
	info, err := deps.Dataset.Describe(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATASET_UNAVAILABLE", "failed to describe working table", true, map[string]any{"details": err.Error()})
		return
	}
	response := datasetResponse{
		Table:    info.Name,
		Columns:  info.Columns,
		RowCount: info.RowCount,
	}
	if response.Columns == nil {
		response.Columns = []string{}
	}
	if !info.MaxTimestamp.IsZero() {
		maxTS := info.MaxTimestamp.UTC()
		response.MaxTimestamp = &maxTS
		response.DataCoversUpTo = maxTS.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, response)
}
