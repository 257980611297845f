package grading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grademark/grademark/internal/exam"
	"github.com/grademark/grademark/internal/session"
	"github.com/grademark/grademark/internal/suggest"
	"github.com/grademark/grademark/internal/triage"
)

const mirrorTimeout = 3 * time.Second

// Broadcaster fans a message out to live dashboard subscribers.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// NopBroadcaster drops all messages.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, any) {}

// Update is the payload pushed to live subscribers after every mutation.
type Update struct {
	Stats       *triage.Stats `json:"stats"`
	TriageCount int           `json:"triageCount"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ServiceConfig holds dependencies for the grading service.
type ServiceConfig struct {
	Store       GradeStore
	Events      EventLogger
	Settings    *Settings
	Broadcaster Broadcaster
	Mirror      *session.Mirror // optional
	SessionID   string
}

// Service applies grader edits to the store, recomputes the triage output
// with fresh thresholds, and fans the result out to the event log, the
// session mirror, and live subscribers.
type Service struct {
	store       GradeStore
	events      EventLogger
	settings    *Settings
	broadcaster Broadcaster
	mirror      *session.Mirror
	sessionID   string
}

// NewService creates a grading service.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(nil)
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	settings := cfg.Settings
	if settings == nil {
		settings = NewSettings(exam.Thresholds{AIConfidence: 80, StudentScore: 50})
	}
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = "default"
	}
	return &Service{
		store:       store,
		events:      events,
		settings:    settings,
		broadcaster: broadcaster,
		mirror:      cfg.Mirror,
		sessionID:   sessionID,
	}
}

// Settings exposes the threshold settings for the API layer.
func (s *Service) Settings() *Settings {
	return s.settings
}

// Snapshot returns a deep copy of the current repository.
func (s *Service) Snapshot() (*exam.Repository, error) {
	return s.store.Repository()
}

// Stats recomputes the weighted statistics from the current snapshot.
func (s *Service) Stats() (*triage.Stats, error) {
	repo, err := s.store.Repository()
	if err != nil {
		return nil, fmt.Errorf("loading repository: %w", err)
	}
	return triage.Aggregate(repo, s.settings.Thresholds())
}

// TriageList rebuilds the sorted worklist from the current snapshot.
func (s *Service) TriageList(filters triage.Filters) ([]triage.Item, error) {
	repo, err := s.store.Repository()
	if err != nil {
		return nil, fmt.Errorf("loading repository: %w", err)
	}
	return triage.BuildList(repo, s.settings.Thresholds(), filters)
}

// RecordScore applies one manual grading pass and returns the updated
// grade together with the recomputed statistics.
func (s *Service) RecordScore(studentID, questionID string, score float64, comment, grader string) (exam.Grade, *triage.Stats, error) {
	grade, err := s.store.RecordManualPass(studentID, questionID, score, comment)
	if err != nil {
		return exam.Grade{}, nil, err
	}

	if err := s.events.LogEvent(Event{
		StudentID:  studentID,
		QuestionID: questionID,
		Grader:     grader,
		EventType:  EventManualPass,
		Data: map[string]any{
			"score":         score,
			"manual_status": grade.ManualStatus,
		},
	}); err != nil {
		slog.Error("failed to log grading event", "error", err)
	}

	stats := s.afterMutation()
	return grade, stats, nil
}

// Import validates and replaces the whole repository from an exported
// front-end document.
func (s *Service) Import(raw []byte, grader string) (*exam.Repository, error) {
	repo, err := exam.ParseRepository(raw)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceRepository(repo); err != nil {
		return nil, fmt.Errorf("replacing repository: %w", err)
	}

	if err := s.events.LogEvent(Event{
		Grader:    grader,
		EventType: EventRepositoryImport,
		Data: map[string]any{
			"submissions": len(repo.StudentSubmissions),
			"questions":   len(repo.Questions),
		},
	}); err != nil {
		slog.Error("failed to log import event", "error", err)
	}

	s.afterMutation()
	return repo, nil
}

// RefreshSuggestions pulls a suggestion batch and merges it into the
// repository. Items a human has already graded are never touched.
func (s *Service) RefreshSuggestions(ctx context.Context, src suggest.Source) (int, error) {
	suggestions, err := src.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching suggestions: %w", err)
	}

	repo, err := s.store.Repository()
	if err != nil {
		return 0, fmt.Errorf("loading repository: %w", err)
	}

	applied := 0
	for _, sg := range suggestions {
		sub, ok := repo.Submission(sg.StudentID)
		if !ok {
			slog.Warn("suggestion for unknown submission", "student_id", sg.StudentID)
			continue
		}
		if _, _, ok := exam.ResolveQuestion(repo.Questions, sg.QuestionID); !ok {
			slog.Warn("suggestion for unknown question", "question_id", sg.QuestionID)
			continue
		}

		grade, _ := sub.GradeFor(sg.QuestionID)
		if grade.ManualStatus > 0 {
			continue // human grading wins
		}
		grade.QuestionID = sg.QuestionID
		grade.Confidence = sg.Confidence
		grade.AISuggestedScore = sg.SuggestedScore

		if err := s.store.UpsertGrade(sg.StudentID, grade); err != nil {
			return applied, fmt.Errorf("applying suggestion %s/%s: %w", sg.StudentID, sg.QuestionID, err)
		}
		applied++
	}

	if applied > 0 {
		if err := s.events.LogEvent(Event{
			EventType: EventSuggestionRefresh,
			Data:      map[string]any{"applied": applied},
		}); err != nil {
			slog.Error("failed to log suggestion event", "error", err)
		}
		s.afterMutation()
	}
	return applied, nil
}

// Workload returns manual-pass counts per grader.
func (s *Service) Workload() (map[string]int, error) {
	return s.events.Workload()
}

// RestoreFromMirror seeds the store from the session mirror, if a snapshot
// exists. Used on boot with the memory store.
func (s *Service) RestoreFromMirror(ctx context.Context) (bool, error) {
	if s.mirror == nil {
		return false, nil
	}
	repo, ok, err := s.mirror.Load(ctx, s.sessionID)
	if err != nil || !ok {
		return false, err
	}
	if err := s.store.ReplaceRepository(repo); err != nil {
		return false, fmt.Errorf("restoring snapshot: %w", err)
	}
	slog.Info("repository restored from session mirror",
		"session_id", s.sessionID,
		"submissions", len(repo.StudentSubmissions),
	)
	return true, nil
}

// afterMutation mirrors the snapshot, recomputes stats, and pushes the
// update to live subscribers. Mirror and broadcast failures are logged,
// never surfaced: the store already holds the truth.
func (s *Service) afterMutation() *triage.Stats {
	repo, err := s.store.Repository()
	if err != nil {
		slog.Error("failed to reload repository after mutation", "error", err)
		return nil
	}

	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		if err := s.mirror.Save(ctx, s.sessionID, repo); err != nil {
			slog.Error("failed to mirror repository snapshot", "error", err)
		}
		cancel()
	}

	stats, err := triage.Aggregate(repo, s.settings.Thresholds())
	if err != nil {
		return nil
	}

	items, err := triage.BuildList(repo, s.settings.Thresholds(), triage.Filters{})
	count := 0
	if err == nil {
		count = len(items)
	}

	s.broadcaster.Broadcast("stats", Update{
		Stats:       stats,
		TriageCount: count,
		UpdatedAt:   time.Now(),
	})
	return stats
}
