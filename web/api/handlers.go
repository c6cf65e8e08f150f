package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/go2siri/github-pr-metrics/internal/domain"
	"github.com/go2siri/github-pr-metrics/internal/task"
)

var (
	ownerPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
	repoPattern  = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	urlPattern   = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`)
)

// AnalyzeRequest starts an analysis. Either GitHubURL or Owner must be
// set; an empty Repo analyzes every repository of the owner.
type AnalyzeRequest struct {
	Owner     string     `json:"owner"`
	Repo      string     `json:"repo"`
	Token     string     `json:"github_token" validate:"required,min=20"`
	Since     *time.Time `json:"since"`
	Until     *time.Time `json:"until"`
	GitHubURL string     `json:"github_url"`
}

// normalize trims fields, resolves github_url into owner/repo and checks
// the cross-field rules.
func (req *AnalyzeRequest) normalize() error {
	req.Owner = strings.TrimSpace(req.Owner)
	req.Repo = strings.TrimSpace(req.Repo)
	req.Token = strings.TrimSpace(req.Token)
	req.GitHubURL = strings.TrimSpace(req.GitHubURL)

	if req.GitHubURL != "" {
		m := urlPattern.FindStringSubmatch(req.GitHubURL)
		if m == nil {
			return errors.New("invalid GitHub URL format. Expected: https://github.com/owner/repo")
		}
		req.Owner = m[1]
		req.Repo = m[2]
	}
	if req.Owner == "" {
		return errors.New("either github_url or owner must be provided")
	}
	if !ownerPattern.MatchString(req.Owner) {
		return errors.New("invalid owner format")
	}
	if req.Repo != "" && !repoPattern.MatchString(req.Repo) {
		return errors.New("invalid repository name format")
	}
	if req.Since != nil && req.Until != nil && !req.Since.Before(*req.Until) {
		return errors.New("'since' date must be before 'until' date")
	}
	return nil
}

// AnalyzeResponse acknowledges a created task and tells the client where
// to follow it.
type AnalyzeResponse struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	WebSocketURL string `json:"websocket_url"`
	StatusURL    string `json:"status_url"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status              string  `json:"status"`
	Version             string  `json:"version"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
	GitHubAPIAccessible bool    `json:"github_api_accessible"`
	ActiveTasks         int     `json:"active_tasks"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message":    "GitHub PR Metrics Analyzer API",
		"version":    apiVersion,
		"health_url": "/api/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:              "healthy",
		Version:             apiVersion,
		UptimeSeconds:       time.Since(s.startedAt).Seconds(),
		GitHubAPIAccessible: s.githubPing(r.Context()),
		ActiveTasks:         s.registry.Len(),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation error", "invalid request body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation error", "github_token is required and must be at least 20 characters")
		return
	}
	if err := req.normalize(); err != nil {
		respondError(w, http.StatusBadRequest, "Validation error", err.Error())
		return
	}

	created, err := s.registry.Create(task.Params{
		Owner: req.Owner,
		Repo:  req.Repo,
		Token: req.Token,
		Since: req.Since,
		Until: req.Until,
	})
	if err != nil {
		if errors.Is(err, task.ErrQueueFull) {
			respondError(w, http.StatusServiceUnavailable, "Service unavailable", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Internal server error", "failed to start analysis")
		return
	}

	slog.Info("analysis task created",
		"task_id", created.ID,
		"owner", req.Owner,
		"repo", req.Repo)

	respondJSON(w, http.StatusOK, AnalyzeResponse{
		TaskID:       created.ID,
		Status:       string(created.Status),
		Message:      "Analysis task created successfully",
		WebSocketURL: fmt.Sprintf("%s://%s/ws/%s", wsScheme(r), r.Host, created.ID),
		StatusURL:    fmt.Sprintf("%s://%s/api/analysis/%s", httpScheme(r), r.Host, created.ID),
	})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	t, ok := s.registry.Get(taskID)
	if !ok {
		respondError(w, http.StatusNotFound, "Not found", "Task not found")
		return
	}

	if t.Status == domain.StatusCompleted {
		if result, ok := s.registry.Result(taskID); ok {
			respondJSON(w, http.StatusOK, map[string]any{
				"task_id": taskID,
				"status":  t.Status,
				"result":  result,
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	tasks := make(map[string]domain.Task, len(list))
	for _, t := range list {
		tasks[t.ID] = t
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total_tasks": len(tasks),
		"tasks":       tasks,
	})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	switch err := s.registry.Delete(taskID); {
	case err == nil:
		slog.Info("task deleted", "task_id", taskID)
		respondJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("Task %s deleted successfully", taskID),
		})
	case errors.Is(err, task.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, "Not found", "Task not found")
	case errors.Is(err, task.ErrTaskConflict):
		respondError(w, http.StatusConflict, "Conflict", "Cannot delete running or pending tasks")
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}

func wsScheme(r *http.Request) string {
	if r.TLS != nil {
		return "wss"
	}
	return "ws"
}

func httpScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, kind, detail string) {
	respondJSON(w, status, map[string]string{
		"error":  kind,
		"detail": detail,
	})
}
