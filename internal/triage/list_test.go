package triage_test

import (
	"errors"
	"testing"

	"github.com/grademark/grademark/internal/exam"
	"github.com/grademark/grademark/internal/triage"
)

func subquestionRepo() *exam.Repository {
	return &exam.Repository{
		Questions: []exam.Question{
			{ID: "Q1", Points: 10, Subquestions: []exam.Question{
				{ID: "Q1.A", Points: 5},
				{ID: "Q1.B", Points: 5},
			}},
		},
		StudentSubmissions: []exam.StudentSubmission{
			{ID: "s1", Name: "Aisyah", Grades: []exam.Grade{
				{QuestionID: "Q1.A", Confidence: 40, Score: ptr(4.0), ManualStatus: 2},
			}},
		},
	}
}

func TestBuildList_NoData(t *testing.T) {
	_, err := triage.BuildList(nil, defaultThresholds, triage.Filters{})
	if !errors.Is(err, triage.ErrNoData) {
		t.Errorf("BuildList(nil) error = %v, want ErrNoData", err)
	}
}

// One parent with two subquestions: one settled, one untouched. The list
// must carry both subquestion rows plus a parent overview row inheriting
// the worst child state.
func TestBuildList_DualEmission(t *testing.T) {
	items, err := triage.BuildList(subquestionRepo(), defaultThresholds, triage.Filters{})
	if err != nil {
		t.Fatalf("BuildList() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}

	byQuestion := map[string]triage.Item{}
	for _, it := range items {
		byQuestion[it.QuestionID] = it
	}

	if got := byQuestion["Q1.A"].Category; got != triage.GradedTwicePlus {
		t.Errorf("Q1.A category = %v, want GradedTwicePlus", got)
	}
	if got := byQuestion["Q1.B"].Category; got != triage.AILow {
		t.Errorf("Q1.B category = %v, want AILow", got)
	}

	parent := byQuestion["Q1"]
	if parent.Category != triage.AILow {
		t.Errorf("parent category = %v, want AILow (worst child)", parent.Category)
	}
	if parent.Confidence != 0 {
		t.Errorf("parent confidence = %v, want 0 (min child confidence)", parent.Confidence)
	}
	if parent.TaskLabel != "Aisyah - Q1" {
		t.Errorf("parent label = %q, want %q", parent.TaskLabel, "Aisyah - Q1")
	}
}

func TestBuildList_ParentIsWorstChild(t *testing.T) {
	repo := &exam.Repository{
		Questions: []exam.Question{
			{ID: "Q1", Points: 10, Subquestions: []exam.Question{
				{ID: "Q1.A", Points: 5},
				{ID: "Q1.B", Points: 5},
			}},
		},
		StudentSubmissions: []exam.StudentSubmission{
			{ID: "s1", Name: "Ben", Grades: []exam.Grade{
				{QuestionID: "Q1.A", Confidence: 92, AISuggestedScore: 5}, // aiHigh
				{QuestionID: "Q1.B", Confidence: 85, AISuggestedScore: 1}, // lowScore
			}},
		},
	}

	items, err := triage.BuildList(repo, defaultThresholds, triage.Filters{})
	if err != nil {
		t.Fatalf("BuildList() error = %v", err)
	}

	for _, it := range items {
		if it.QuestionID != "Q1" {
			continue
		}
		if it.Category != triage.LowScore {
			t.Errorf("parent category = %v, want LowScore", it.Category)
		}
		if it.Confidence != 85 {
			t.Errorf("parent confidence = %v, want 85", it.Confidence)
		}
		return
	}
	t.Fatal("no parent row emitted for Q1")
}

func TestBuildList_SortOrder(t *testing.T) {
	// Four standalone questions engineered into categories 2,0,3,1 with
	// mixed confidences.
	repo := &exam.Repository{
		Questions: []exam.Question{
			{ID: "QA", Points: 10},
			{ID: "QB", Points: 10},
			{ID: "QC", Points: 10},
			{ID: "QD", Points: 10},
		},
		StudentSubmissions: []exam.StudentSubmission{
			{ID: "s1", Name: "S1", Grades: []exam.Grade{
				{QuestionID: "QA", Confidence: 95, AISuggestedScore: 9},                  // aiHigh
				{QuestionID: "QB", Confidence: 30, AISuggestedScore: 9},                  // aiLow
				{QuestionID: "QC", Confidence: 10, Score: ptr(8.0), ManualStatus: 1},     // gradedOnce
				{QuestionID: "QD", Confidence: 88, AISuggestedScore: 1},                  // lowScore
			}},
			{ID: "s2", Name: "S2", Grades: []exam.Grade{
				{QuestionID: "QB", Confidence: 10, AISuggestedScore: 9}, // aiLow, lower confidence
			}},
		},
	}

	items, err := triage.BuildList(repo, defaultThresholds, triage.Filters{})
	if err != nil {
		t.Fatalf("BuildList() error = %v", err)
	}

	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if cur.Category < prev.Category {
			t.Fatalf("category order violated at %d: %v after %v", i, cur.Category, prev.Category)
		}
		if cur.Category == prev.Category && cur.Confidence < prev.Confidence {
			t.Fatalf("confidence order violated at %d: %v after %v", i, cur.Confidence, prev.Confidence)
		}
	}

	if items[0].Category != triage.AILow {
		t.Errorf("first item category = %v, want AILow", items[0].Category)
	}
}

func TestBuildList_QuestionFilter(t *testing.T) {
	repo := subquestionRepo()

	// Filtering on the parent keeps the parent row and every child row.
	items, err := triage.BuildList(repo, defaultThresholds, triage.Filters{QuestionID: "Q1"})
	if err != nil {
		t.Fatalf("BuildList() error = %v", err)
	}
	if len(items) != 3 {
		t.Errorf("parent filter: len = %d, want 3", len(items))
	}

	// Filtering on one subquestion keeps only that row.
	items, err = triage.BuildList(repo, defaultThresholds, triage.Filters{QuestionID: "Q1.B"})
	if err != nil {
		t.Fatalf("BuildList() error = %v", err)
	}
	if len(items) != 1 || items[0].QuestionID != "Q1.B" {
		t.Errorf("subquestion filter: got %+v, want single Q1.B row", items)
	}
}

func TestBuildList_StudentFilter(t *testing.T) {
	repo := &exam.Repository{
		Questions: []exam.Question{{ID: "Q1", Points: 10}},
		StudentSubmissions: []exam.StudentSubmission{
			{ID: "s1", Name: "Aisyah Binti Ahmad"},
			{ID: "s2", Name: "Ben Tan"},
		},
	}

	items, err := triage.BuildList(repo, defaultThresholds, triage.Filters{StudentName: "aisyah"})
	if err != nil {
		t.Fatalf("BuildList() error = %v", err)
	}
	if len(items) != 1 || items[0].StudentID != "s1" {
		t.Errorf("student filter: got %+v, want only s1", items)
	}
}
