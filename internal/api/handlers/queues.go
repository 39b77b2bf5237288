package handlers

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"github.com/verisend/server/internal/api/problem"
	"github.com/verisend/server/internal/audit"
)

// QueuesHandler backs the job dashboard: queue statistics, recent jobs, and
// retry/cancel actions on top of River's job table.
type QueuesHandler struct {
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
	Env         string
	Templates   *template.Template
	Audit       *audit.Logger
}

func NewQueuesHandler(pool *pgxpool.Pool, riverClient *river.Client[pgx.Tx], env string, templates *template.Template, auditLogger *audit.Logger) *QueuesHandler {
	return &QueuesHandler{
		Pool:        pool,
		RiverClient: riverClient,
		Env:         env,
		Templates:   templates,
		Audit:       auditLogger,
	}
}

// QueueStats summarizes the job table for the dashboard.
type QueueStats struct {
	States    map[string]int64 `json:"states"`
	Kinds     map[string]int64 `json:"kinds"`
	Timestamp string           `json:"timestamp"`
}

// JobSummary is one row in the dashboard job list.
type JobSummary struct {
	ID          int64      `json:"id"`
	Kind        string     `json:"kind"`
	Queue       string     `json:"queue"`
	State       string     `json:"state"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

const jobListLimitMax = 200

// Stats handles GET /api/queues/stats.
func (h *QueuesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Pool == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", nil, h.Env)
		return
	}

	stats, err := h.collectStats(r)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Failed to read queue statistics", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *QueuesHandler) collectStats(r *http.Request) (QueueStats, error) {
	stats := QueueStats{
		States:    make(map[string]int64),
		Kinds:     make(map[string]int64),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	rows, err := h.Pool.Query(r.Context(), `SELECT state::text, COUNT(*) FROM river_job GROUP BY state`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return stats, err
		}
		stats.States[state] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	kindRows, err := h.Pool.Query(r.Context(), `SELECT kind, COUNT(*) FROM river_job GROUP BY kind`)
	if err != nil {
		return stats, err
	}
	defer kindRows.Close()
	for kindRows.Next() {
		var kind string
		var count int64
		if err := kindRows.Scan(&kind, &count); err != nil {
			return stats, err
		}
		stats.Kinds[kind] = count
	}
	return stats, kindRows.Err()
}

// Jobs handles GET /api/queues/jobs with optional state and limit filters.
func (h *QueuesHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Pool == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", nil, h.Env)
		return
	}

	jobs, err := h.listJobs(r)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Failed to list jobs", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (h *QueuesHandler) listJobs(r *http.Request) ([]JobSummary, error) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= jobListLimitMax {
			limit = parsed
		}
	}

	query := `
		SELECT id, kind, queue, state::text, attempt, max_attempts,
		       COALESCE(errors[array_upper(errors, 1)]->>'error', ''),
		       created_at, scheduled_at, finalized_at
		FROM river_job
	`
	args := []interface{}{}
	if state := strings.TrimSpace(r.URL.Query().Get("state")); state != "" {
		query += ` WHERE state::text = $1 ORDER BY id DESC LIMIT $2`
		args = append(args, state, limit)
	} else {
		query += ` ORDER BY id DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := h.Pool.Query(r.Context(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]JobSummary, 0, limit)
	for rows.Next() {
		var job JobSummary
		if err := rows.Scan(&job.ID, &job.Kind, &job.Queue, &job.State, &job.Attempt, &job.MaxAttempts,
			&job.LastError, &job.CreatedAt, &job.ScheduledAt, &job.FinalizedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RetryJob handles POST /api/queues/jobs/{id}/retry.
func (h *QueuesHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.RiverClient == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Job queue not available in this process", nil, h.Env)
		return
	}

	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.RiverClient.JobRetry(r.Context(), id)
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Job not found", err, h.Env)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "job.retry", adminActor(r), "job", strconv.FormatInt(job.ID, 10))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    job.ID,
		"state": string(job.State),
	})
}

// CancelJob handles POST /api/queues/jobs/{id}/cancel.
func (h *QueuesHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.RiverClient == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Job queue not available in this process", nil, h.Env)
		return
	}

	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.RiverClient.JobCancel(r.Context(), id)
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Job not found", err, h.Env)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "job.cancel", adminActor(r), "job", strconv.FormatInt(job.ID, 10))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    job.ID,
		"state": string(job.State),
	})
}

// Dashboard handles GET /api/queues, the HTML view.
func (h *QueuesHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Templates == nil || h.Pool == nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	stats, err := h.collectStats(r)
	if err != nil {
		http.Error(w, "Failed to read queue statistics", http.StatusInternalServerError)
		return
	}
	jobs, err := h.listJobs(r)
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	data := map[string]interface{}{
		"Title": "Verisend Queue Dashboard",
		"Stats": stats,
		"Jobs":  jobs,
	}
	if err := h.Templates.ExecuteTemplate(w, "queues.html", data); err != nil {
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

func (h *QueuesHandler) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(pathParam(r, "id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithErrors(map[string]interface{}{"id": "must be a positive integer"}))
		return 0, false
	}
	return id, true
}
