package triage

import (
	"errors"

	"github.com/grademark/grademark/internal/exam"
)

// ErrNoData signals that the repository is missing the questions or the
// submissions needed to compute anything. Callers render an empty state;
// it is not a fault.
var ErrNoData = errors.New("grading repository has no data")

// Breakdown holds one value per category. Depending on context the values
// are raw counts, per-question percentages, or weighted global percentages.
type Breakdown struct {
	AILow           float64 `json:"aiLow"`
	LowScore        float64 `json:"lowScore"`
	AIHigh          float64 `json:"aiHigh"`
	GradedOnce      float64 `json:"gradedOnce"`
	GradedTwicePlus float64 `json:"graded2Plus"`
}

// Add increments the category's bucket by v.
func (b *Breakdown) Add(c Category, v float64) {
	switch c {
	case AILow:
		b.AILow += v
	case LowScore:
		b.LowScore += v
	case AIHigh:
		b.AIHigh += v
	case GradedOnce:
		b.GradedOnce += v
	case GradedTwicePlus:
		b.GradedTwicePlus += v
	}
}

// Get returns the category's bucket.
func (b Breakdown) Get(c Category) float64 {
	switch c {
	case AILow:
		return b.AILow
	case LowScore:
		return b.LowScore
	case AIHigh:
		return b.AIHigh
	case GradedOnce:
		return b.GradedOnce
	case GradedTwicePlus:
		return b.GradedTwicePlus
	}
	return 0
}

// Sum returns the total across all five buckets.
func (b Breakdown) Sum() float64 {
	return b.AILow + b.LowScore + b.AIHigh + b.GradedOnce + b.GradedTwicePlus
}

func (b *Breakdown) scale(f float64) {
	b.AILow *= f
	b.LowScore *= f
	b.AIHigh *= f
	b.GradedOnce *= f
	b.GradedTwicePlus *= f
}

// GlobalStats is the exam-wide weighted breakdown. TotalWeight is a
// sanity total that lands on 100 when every top-level question has at
// least one gradable item and at least one student exists; it is exposed
// for debugging, not rendered.
type GlobalStats struct {
	Breakdown
	TotalWeight float64 `json:"totalWeight"`
}

// Stats is the aggregator output: the global donut plus the per-question
// breakdown bars, keyed by top-level question id.
type Stats struct {
	Global    GlobalStats          `json:"globalStats"`
	Questions map[string]Breakdown `json:"questionStats"`
}

// Aggregate walks the question hierarchy and every submission and produces
// the weighted statistics.
//
// Weighting: the 100% pie is split equally across top-level questions
// regardless of point values, and each question's share is split equally
// across its gradable leaf items. Every (leaf, student) pair contributes
// weightPerItem/numStudents to the global breakdown and one raw count to
// its top-level question's breakdown; per-question counts are converted to
// percentages of that question's own sample afterwards.
//
// The walk is a full recompute on every call; nothing is cached between
// calls, so live threshold changes always take effect.
func Aggregate(repo *exam.Repository, th exam.Thresholds) (*Stats, error) {
	if repo == nil || len(repo.Questions) == 0 || repo.StudentSubmissions == nil {
		return nil, ErrNoData
	}

	stats := &Stats{
		Questions: make(map[string]Breakdown, len(repo.Questions)),
	}

	weightPerQuestion := 100.0 / float64(len(repo.Questions))
	numStudents := len(repo.StudentSubmissions)

	for _, q := range repo.Questions {
		leaves := q.Leaves()
		weightPerItem := weightPerQuestion / float64(len(leaves))

		var qb Breakdown
		totalCount := 0

		for _, leaf := range leaves {
			for _, sub := range repo.StudentSubmissions {
				g, _ := sub.GradeFor(leaf.ID) // zero Grade when absent
				cat := ClassifyGrade(g, leaf.Points, th)

				qb.Add(cat, 1)
				totalCount++

				contribution := weightPerItem / float64(numStudents)
				stats.Global.Add(cat, contribution)
				stats.Global.TotalWeight += contribution
			}
		}

		if totalCount > 0 {
			qb.scale(100.0 / float64(totalCount))
		}
		stats.Questions[q.ID] = qb
	}

	return stats, nil
}
