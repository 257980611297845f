// Package grading holds the mutable grading state and the service that
// applies grader edits, recomputes triage output, and fans the result out.
package grading

import (
	"fmt"
	"sync"

	"github.com/grademark/grademark/internal/exam"
)

// GradeStore persists submissions and their grades for one exam.
// Repository returns a deep snapshot; mutations go through the explicit
// methods so manual-status counting stays consistent.
type GradeStore interface {
	Repository() (*exam.Repository, error)
	ReplaceRepository(repo *exam.Repository) error
	UpsertGrade(studentID string, grade exam.Grade) error
	RecordManualPass(studentID, questionID string, score float64, comment string) (exam.Grade, error)
}

// MemoryStore is an in-memory GradeStore. It is the authoritative store in
// a single-node deployment; the session mirror and PostgresStore add
// durability on top.
type MemoryStore struct {
	repo *exam.Repository
	mu   sync.RWMutex
}

// NewMemoryStore creates a memory store seeded with the given repository.
func NewMemoryStore(repo *exam.Repository) *MemoryStore {
	if repo == nil {
		repo = &exam.Repository{}
	}
	return &MemoryStore{repo: repo.Clone()}
}

func (s *MemoryStore) Repository() (*exam.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.Clone(), nil
}

func (s *MemoryStore) ReplaceRepository(repo *exam.Repository) error {
	if repo == nil {
		return fmt.Errorf("repository is nil")
	}
	s.mu.Lock()
	s.repo = repo.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpsertGrade(studentID string, grade exam.Grade) error {
	if grade.QuestionID == "" {
		return fmt.Errorf("grade question id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.repo.Submission(studentID)
	if !ok {
		return fmt.Errorf("submission not found: %s", studentID)
	}

	for i := range sub.Grades {
		if sub.Grades[i].QuestionID == grade.QuestionID {
			sub.Grades[i] = grade
			return nil
		}
	}
	sub.Grades = append(sub.Grades, grade)
	return nil
}

// RecordManualPass applies one human grading pass: the score and comment
// are set and the manual-status count goes up by one. The grade entry is
// created lazily on the first pass; ungraded items have no entry at all.
func (s *MemoryStore) RecordManualPass(studentID, questionID string, score float64, comment string) (exam.Grade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, _, ok := exam.ResolveQuestion(s.repo.Questions, questionID)
	if !ok {
		return exam.Grade{}, fmt.Errorf("question not found: %s", questionID)
	}
	if q.IsParent() {
		return exam.Grade{}, fmt.Errorf("question %s is not directly gradable", questionID)
	}
	if score < 0 || score > q.Points {
		return exam.Grade{}, fmt.Errorf("score %v out of range [0, %v] for %s", score, q.Points, questionID)
	}

	sub, ok := s.repo.Submission(studentID)
	if !ok {
		return exam.Grade{}, fmt.Errorf("submission not found: %s", studentID)
	}

	for i := range sub.Grades {
		if sub.Grades[i].QuestionID == questionID {
			sub.Grades[i].Score = &score
			sub.Grades[i].ManualStatus++
			if comment != "" {
				sub.Grades[i].Comment = comment
			}
			return sub.Grades[i], nil
		}
	}

	g := exam.Grade{
		QuestionID:   questionID,
		Score:        &score,
		ManualStatus: 1,
		Comment:      comment,
	}
	sub.Grades = append(sub.Grades, g)
	return g, nil
}
