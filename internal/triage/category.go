// Package triage classifies every gradable item of an exam into a review
// category and derives the weighted statistics and sorted worklist the
// grading dashboard is built from.
package triage

import (
	"fmt"

	"github.com/grademark/grademark/internal/exam"
)

// Category ranks a grade's need for human review. Lower values are more
// urgent; the numeric order is the sort key for the triage list and the
// worst-of reducer for parent questions. This is the single canonical
// representation: the string form used in API payloads comes from
// String(), never from a second mapping.
type Category int

const (
	// AILow: AI confidence below the confidence threshold, needs review.
	AILow Category = iota
	// LowScore: AI is confident but the suggested score sits below the
	// score threshold, needs review.
	LowScore
	// AIHigh: AI is confident and the score clears the threshold, trusted.
	AIHigh
	// GradedOnce: manually graded exactly once.
	GradedOnce
	// GradedTwicePlus: manually graded twice or more, fully settled.
	GradedTwicePlus
)

func (c Category) String() string {
	switch c {
	case AILow:
		return "aiLow"
	case LowScore:
		return "lowScore"
	case AIHigh:
		return "aiHigh"
	case GradedOnce:
		return "gradedOnce"
	case GradedTwicePlus:
		return "graded2Plus"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// MarshalText emits the canonical category name for JSON payloads.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Classify maps one gradable item to its category. Manual grading always
// wins over the AI fields; otherwise the confidence threshold is checked
// before the score threshold. Ties on either threshold pass: only a
// strictly lower value lands in a needs-review category.
//
// maxPoints = 0 forces the score percentage to 0, so zero-point items are
// classified LowScore once the AI is confident (unless the score threshold
// is 0).
func Classify(confidence, score, maxPoints float64, manualStatus int, th exam.Thresholds) Category {
	if manualStatus >= 2 {
		return GradedTwicePlus
	}
	if manualStatus == 1 {
		return GradedOnce
	}

	scorePercentage := 0.0
	if maxPoints > 0 {
		scorePercentage = score / maxPoints * 100
	}

	if confidence < th.AIConfidence {
		return AILow
	}
	if scorePercentage < th.StudentScore {
		return LowScore
	}
	return AIHigh
}

// ClassifyGrade classifies a stored grade against the leaf's max points.
// The zero Grade value is the implicit state of an ungraded item
// (confidence 0, score 0, no manual passes) and classifies as AILow.
func ClassifyGrade(g exam.Grade, maxPoints float64, th exam.Thresholds) Category {
	return Classify(g.Confidence, g.EffectiveScore(), maxPoints, g.ManualStatus, th)
}
