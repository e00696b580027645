package ui

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"goamcc/domain/core"
	"goamcc/internal/config"
	"goamcc/internal/errors"
	"goamcc/internal/report"
	"goamcc/internal/session"
)

// runRequest carries overrides for one run. Absent fields keep the server
// defaults.
type runRequest struct {
	DataPath        *string           `json:"data_path"`
	OutputFile      *string           `json:"output_file"`
	ThreshProb      *float64          `json:"thresh_prob"`
	IgnoreIndices   []int             `json:"ignore_indices"`
	TransitionRules map[string]string `json:"transition_rules"`
	TimeoutSeconds  *int              `json:"timeout_seconds"`
	Workers         *int              `json:"workers"`
}

func (req runRequest) apply(cfg config.RunConfig) config.RunConfig {
	if req.DataPath != nil {
		cfg.DataPath = *req.DataPath
	}
	if req.OutputFile != nil {
		cfg.OutputFile = *req.OutputFile
	}
	if req.ThreshProb != nil {
		cfg.ThreshProb = *req.ThreshProb
	}
	if req.IgnoreIndices != nil {
		cfg.IgnoreIndices = append([]int(nil), req.IgnoreIndices...)
	}
	if req.TransitionRules != nil {
		cfg.TransitionRules = req.TransitionRules
	}
	if req.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Workers != nil {
		cfg.Workers = *req.Workers
	}
	return cfg
}

// parseRunRequest reads JSON bodies as runRequest and anything else as the
// HTML form: data_path, output_file, thresh_prob and a comma separated
// ignore_indices
func parseRunRequest(r *http.Request) (runRequest, error) {
	var req runRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.InvalidInput("malformed JSON body: " + err.Error())
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, errors.InvalidInput("malformed form: " + err.Error())
	}
	if v := strings.TrimSpace(r.PostForm.Get("data_path")); v != "" {
		req.DataPath = &v
	}
	if _, ok := r.PostForm["output_file"]; ok {
		v := strings.TrimSpace(r.PostForm.Get("output_file"))
		req.OutputFile = &v
	}
	if v := strings.TrimSpace(r.PostForm.Get("thresh_prob")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errors.InvalidInput("thresh_prob must be a number")
		}
		req.ThreshProb = &f
	}
	if _, ok := r.PostForm["ignore_indices"]; ok {
		indices, err := config.ParseIndexList(r.PostForm.Get("ignore_indices"))
		if err != nil {
			return req, err
		}
		req.IgnoreIndices = indices
	}
	return req, nil
}

// handleIndex renders the run form with the server defaults
func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	a.renderTemplate(w, "index.html", map[string]interface{}{
		"Defaults":      a.defaults,
		"IgnoreIndices": formatIndexList(a.defaults.IgnoreIndices),
	})
}

// handleStartRun validates the overrides and starts the run in the background
func (a *App) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if a.admit != nil && !a.admit.Allow() {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, errors.New(errors.CodeRateLimited, "too many runs started, try again later"))
		return
	}

	req, err := parseRunRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg := req.apply(a.defaults)
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := a.runs.Start(cfg)
	a.logger.Info("[Runs] started %s on %s", id, cfg.DataPath)

	w.Header().Set("Location", "/api/runs/"+id.String())
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": id,
		"status": session.JobRunning,
	})
}

// handleGetRun returns the run status with its report or error
func (a *App) handleGetRun(w http.ResponseWriter, r *http.Request) {
	job, ok := a.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleRunLog drains the messages the run produced since the last poll
func (a *App) handleRunLog(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	messages, err := a.runs.Logs(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":   id,
		"messages": messages,
	})
}

// handleRunReport renders a finished run as HTML
func (a *App) handleRunReport(w http.ResponseWriter, r *http.Request) {
	job, ok := a.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Report == nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"run_id": job.ID,
			"status": job.Status,
			"error":  job.Error,
		})
		return
	}

	a.renderTemplate(w, "report.html", map[string]interface{}{
		"RunID": job.ID,
		"Body":  template.HTML(report.HTML(job.Report)),
	})
}

// handleListRuns returns stored run summaries, newest first
func (a *App) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if a.repo == nil {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	summaries, err := a.repo.ListRuns(r.Context(), limit)
	if err != nil {
		a.logger.Error("[Runs] failed to list runs: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *App) lookupJob(w http.ResponseWriter, r *http.Request) (*session.Job, bool) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	job, err := a.runs.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return job, true
}

func statusFor(err error) int {
	if core.IsNotFoundError(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]interface{}{"error": err.Error()}
	if errors.IsAppError(err) {
		body["code"] = errors.GetCode(err)
	}
	writeJSON(w, status, body)
}

func formatIndexList(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
