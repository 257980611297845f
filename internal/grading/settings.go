package grading

import (
	"fmt"
	"sync"

	"github.com/grademark/grademark/internal/exam"
)

// Settings holds the grader-tunable thresholds. Every classification run
// reads them fresh through Thresholds(); nothing caches them, so an update
// takes effect on the next recompute.
type Settings struct {
	mu sync.RWMutex
	th exam.Thresholds
}

// NewSettings creates settings with the given initial thresholds.
func NewSettings(th exam.Thresholds) *Settings {
	return &Settings{th: th}
}

// Thresholds returns the current thresholds.
func (s *Settings) Thresholds() exam.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.th
}

// Update replaces the thresholds. Both values must sit in [0,100].
func (s *Settings) Update(th exam.Thresholds) error {
	if th.AIConfidence < 0 || th.AIConfidence > 100 {
		return fmt.Errorf("aiConfidenceThreshold %v out of range [0,100]", th.AIConfidence)
	}
	if th.StudentScore < 0 || th.StudentScore > 100 {
		return fmt.Errorf("studentScoreThreshold %v out of range [0,100]", th.StudentScore)
	}

	s.mu.Lock()
	s.th = th
	s.mu.Unlock()
	return nil
}
