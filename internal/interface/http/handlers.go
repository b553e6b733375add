package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/learnpath/academy-hub/internal/application/command"
	"github.com/learnpath/academy-hub/internal/application/workspace"
	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":    "Academy Hub API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":   "/health",
			"auth":     "/api/auth/login",
			"courses":  "/api/v1/courses",
			"progress": "/api/v1/learners/{id}/progress",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": s.config.Version,
		})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady reports readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// workspace resolves the {id} path value. It writes the error response itself.
func (s *Server) workspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := s.deps.Workspaces.For(r.PathValue("id"))
	if err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_learner", "Learner ID is invalid", err.Error())
		return nil, false
	}
	return ws, true
}

// handleGetProgress handles GET /api/v1/learners/{id}/progress.
// Failures degrade to the zero snapshot, so this route always answers 200.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, ws.Progress.GetUnifiedProgress(r.Context()))
}

// handleGetStats handles GET /api/v1/learners/{id}/stats.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if s.deps.FastStats(ws.LearnerID.String()) {
		writeJSON(w, r, http.StatusOK, ws.Progress.GetFastStats(r.Context()))
		return
	}
	writeJSON(w, r, http.StatusOK, ws.Progress.GetUnifiedProgress(r.Context()).Stats())
}

// handleGetContinue handles GET /api/v1/learners/{id}/continue.
// No target (empty catalog, fetch failure) answers 200 without data.
func (s *Server) handleGetContinue(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	target := ws.Continue.GetContinueData(r.Context())
	if target == nil {
		writeJSON(w, r, http.StatusOK, nil)
		return
	}
	writeJSON(w, r, http.StatusOK, target)
}

func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	views, err := ws.Achievements.GetRecentAchievements(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "failed to load achievements", err)
		return
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	rec, err := ws.Streaks.GetCurrentStreak(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "failed to load streak", err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// handleCompleteLesson handles POST /api/v1/learners/{id}/lessons/{lessonID}/complete.
func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.CompleteLesson.Handle(r.Context(), command.CompleteLessonCommand{
		LearnerID:     r.PathValue("id"),
		LessonID:      r.PathValue("lessonID"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, "failed to complete lesson", err)
		return
	}
	status := http.StatusOK
	if !res.AlreadyCompleted {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, res)
}

type commissionRequest struct {
	AmountCents int64 `json:"amountCents"`
}

// handleRecordCommission handles POST /api/v1/learners/{id}/commissions.
// The route answers 404 while the commission feature is off for the learner.
func (s *Server) handleRecordCommission(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if s.deps.RecordCommission == nil || !s.deps.Commission(learnerID) {
		writeJSONError(w, http.StatusNotFound, "not_found", "Commission tracking is not enabled")
		return
	}
	var req commissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Body must be JSON", err.Error())
		return
	}
	res, err := s.deps.RecordCommission.Handle(r.Context(), command.RecordCommissionCommand{
		LearnerID:   learnerID,
		AmountCents: req.AmountCents,
	})
	if err != nil {
		s.writeDomainError(w, r, "failed to record commission", err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type courseSummary struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Track        course.Track `json:"track"`
	TotalLessons int          `json:"totalLessons"`
	Modules      int          `json:"modules"`
}

// handleListCourses handles GET /api/v1/courses.
func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	cat, err := s.deps.Catalog.Get(r.Context(), false)
	if err != nil {
		s.writeDomainError(w, r, "failed to load catalog", err)
		return
	}
	out := make([]courseSummary, 0, len(cat))
	for _, c := range cat {
		out = append(out, courseSummary{
			ID:           c.ID,
			Title:        c.Title,
			Description:  c.Description,
			Track:        c.EffectiveTrack(),
			TotalLessons: c.TotalLessons(),
			Modules:      len(c.Modules),
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain error kinds onto status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := logger.FromContext(r.Context())

	var de *shared.DomainError
	details := err.Error()
	if errors.As(err, &de) {
		details = de.Message
	}

	switch {
	case shared.IsValidation(err):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", msg, details)
	case shared.IsNotFound(err):
		writeJSONErrorWithDetails(w, http.StatusNotFound, "not_found", msg, details)
	case shared.IsAuth(err):
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", msg)
	case shared.IsExternalService(err):
		log.Warn(msg, logger.Err(err))
		writeJSONErrorWithDetails(w, http.StatusServiceUnavailable, "unavailable", msg, details)
	default:
		log.Error(msg, logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", msg)
	}
}
