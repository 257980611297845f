// Package httpapi exposes the grading service over REST plus the live
// WebSocket feed.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/grademark/grademark/internal/exam"
	"github.com/grademark/grademark/internal/export"
	"github.com/grademark/grademark/internal/grading"
	"github.com/grademark/grademark/internal/suggest"
	"github.com/grademark/grademark/internal/triage"
)

const maxImportBytes = 16 << 20 // front-end exports stay well under this

// Config holds handler dependencies.
type Config struct {
	Service     *grading.Service
	Suggestions suggest.Source // optional; nil disables the refresh endpoint
	Live        http.Handler   // optional; nil disables the WebSocket feed
	// TokenHash is a bcrypt hash of the grader API token. Empty disables
	// authentication on mutating endpoints.
	TokenHash string
}

// Handler serves the grading API.
type Handler struct {
	svc         *grading.Service
	suggestions suggest.Source
	live        http.Handler
	tokenHash   string
}

// New creates the API handler.
func New(cfg Config) *Handler {
	return &Handler{
		svc:         cfg.Service,
		suggestions: cfg.Suggestions,
		live:        cfg.Live,
		tokenHash:   cfg.TokenHash,
	}
}

// Routes builds the HTTP router.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)

	mux.HandleFunc("GET /api/v1/stats", h.handleStats)
	mux.HandleFunc("GET /api/v1/triage", h.handleTriage)
	mux.HandleFunc("GET /api/v1/submissions", h.handleSubmissions)
	mux.HandleFunc("GET /api/v1/submissions/{id}", h.handleSubmission)
	mux.HandleFunc("GET /api/v1/submissions/{id}/grades/{questionID}", h.handleGetGrade)
	mux.HandleFunc("POST /api/v1/submissions/{id}/grades/{questionID}", h.requireAuth(h.handleRecordScore))
	mux.HandleFunc("GET /api/v1/thresholds", h.handleGetThresholds)
	mux.HandleFunc("PUT /api/v1/thresholds", h.requireAuth(h.handlePutThresholds))
	mux.HandleFunc("POST /api/v1/import", h.requireAuth(h.handleImport))
	mux.HandleFunc("GET /api/v1/workload", h.handleWorkload)
	mux.HandleFunc("GET /api/v1/export", h.handleExport)

	if h.suggestions != nil {
		mux.HandleFunc("POST /api/v1/suggestions/refresh", h.requireAuth(h.handleRefreshSuggestions))
	}
	if h.live != nil {
		mux.Handle("GET /api/v1/live", h.live)
	}

	return mux
}

// requireAuth checks the bearer token against the configured bcrypt hash.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.tokenHash == "" {
			next(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(h.tokenHash), []byte(token)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if _, err := h.svc.Snapshot(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := h.svc.Stats()
	if errors.Is(err, triage.ErrNoData) {
		writeJSON(w, http.StatusOK, map[string]bool{"noData": true})
		return
	}
	if err != nil {
		slog.Error("stats computation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleTriage(w http.ResponseWriter, r *http.Request) {
	filters := triage.Filters{
		QuestionID:  r.URL.Query().Get("question"),
		StudentName: r.URL.Query().Get("student"),
	}

	items, err := h.svc.TriageList(filters)
	if errors.Is(err, triage.ErrNoData) {
		writeJSON(w, http.StatusOK, map[string]any{"noData": true, "items": []triage.Item{}})
		return
	}
	if err != nil {
		slog.Error("triage list build failed", "error", err)
		writeError(w, http.StatusInternalServerError, "triage list unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) handleSubmissions(w http.ResponseWriter, _ *http.Request) {
	repo, err := h.svc.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	type summary struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Grades int    `json:"grades"`
	}
	out := make([]summary, 0, len(repo.StudentSubmissions))
	for _, s := range repo.StudentSubmissions {
		out = append(out, summary{ID: s.ID, Name: s.Name, Grades: len(s.Grades)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSubmission(w http.ResponseWriter, r *http.Request) {
	repo, err := h.svc.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	sub, ok := repo.Submission(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleGetGrade returns the grade to prefill the score editor. When the
// exact item has no entry yet, the sibling fallback surfaces a neighboring
// grade for display; classification never uses it.
func (h *Handler) handleGetGrade(w http.ResponseWriter, r *http.Request) {
	repo, err := h.svc.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	sub, ok := repo.Submission(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	questionID := r.PathValue("questionID")
	q, parent, ok := exam.ResolveQuestion(repo.Questions, questionID)
	if !ok {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}

	siblings := []exam.Question{}
	if parent != nil {
		siblings = parent.Subquestions
	}

	grade, found := exam.FindGradeWithFallback(*sub, questionID, siblings)
	writeJSON(w, http.StatusOK, map[string]any{
		"grade":     grade,
		"found":     found,
		"maxPoints": q.Points,
	})
}

type recordScoreRequest struct {
	Score   *float64 `json:"score"`
	Comment string   `json:"comment"`
	Grader  string   `json:"grader"`
}

func (h *Handler) handleRecordScore(w http.ResponseWriter, r *http.Request) {
	var req recordScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, "score is required")
		return
	}

	grade, stats, err := h.svc.RecordScore(
		r.PathValue("id"), r.PathValue("questionID"), *req.Score, req.Comment, req.Grader,
	)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"grade": grade,
		"stats": stats,
	})
}

func (h *Handler) handleGetThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Settings().Thresholds())
}

func (h *Handler) handlePutThresholds(w http.ResponseWriter, r *http.Request) {
	var th exam.Thresholds
	if err := json.NewDecoder(r.Body).Decode(&th); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Settings().Update(th); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	repo, err := h.svc.Import(raw, r.URL.Query().Get("grader"))
	var verr *exam.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "repository document invalid",
			"problems": verr.Problems,
		})
		return
	}
	if err != nil {
		slog.Error("repository import failed", "error", err)
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"submissions": len(repo.StudentSubmissions),
		"questions":   len(repo.Questions),
	})
}

func (h *Handler) handleRefreshSuggestions(w http.ResponseWriter, r *http.Request) {
	applied, err := h.svc.RefreshSuggestions(r.Context(), h.suggestions)
	if err != nil {
		slog.Error("suggestion refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "suggestion refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
}

func (h *Handler) handleWorkload(w http.ResponseWriter, _ *http.Request) {
	workload, err := h.svc.Workload()
	if err != nil {
		slog.Error("workload query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "workload unavailable")
		return
	}
	writeJSON(w, http.StatusOK, workload)
}

func (h *Handler) handleExport(w http.ResponseWriter, _ *http.Request) {
	stats, err := h.svc.Stats()
	if errors.Is(err, triage.ErrNoData) {
		writeError(w, http.StatusConflict, "nothing to export")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	items, err := h.svc.TriageList(triage.Filters{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "triage list unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="grading-report.xlsx"`)
	if err := export.Write(w, stats, items); err != nil {
		// Headers are gone; all we can do is log.
		slog.Error("export write failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
