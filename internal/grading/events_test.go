package grading_test

import (
	"testing"

	"github.com/grademark/grademark/internal/exam"
	"github.com/grademark/grademark/internal/grading"
)

func TestMemoryEventLogger(t *testing.T) {
	l := grading.NewMemoryEventLogger()

	if err := l.LogEvent(grading.Event{}); err == nil {
		t.Error("LogEvent() accepted event without type")
	}

	events := []grading.Event{
		{EventType: grading.EventManualPass, Grader: "ta-lim", StudentID: "s1", QuestionID: "Q1"},
		{EventType: grading.EventManualPass, Grader: "ta-lim", StudentID: "s2", QuestionID: "Q1"},
		{EventType: grading.EventManualPass, Grader: "ta-wong", StudentID: "s1", QuestionID: "Q2.A"},
		{EventType: grading.EventRepositoryImport, Grader: "ta-lim"},
		{EventType: grading.EventManualPass}, // anonymous, excluded from workload
	}
	for _, e := range events {
		if err := l.LogEvent(e); err != nil {
			t.Fatalf("LogEvent() error = %v", err)
		}
	}

	if got := l.Events(); len(got) != 5 {
		t.Errorf("Events() = %d, want 5", len(got))
	}
	for _, e := range l.Events() {
		if e.CreatedAt.IsZero() {
			t.Error("LogEvent() left CreatedAt zero")
		}
	}

	workload, err := l.Workload()
	if err != nil {
		t.Fatalf("Workload() error = %v", err)
	}
	if workload["ta-lim"] != 2 || workload["ta-wong"] != 1 {
		t.Errorf("workload = %v, want ta-lim:2 ta-wong:1", workload)
	}
	if _, ok := workload[""]; ok {
		t.Error("anonymous events counted in workload")
	}
}

func TestSettings_Update(t *testing.T) {
	s := grading.NewSettings(exam.Thresholds{AIConfidence: 80, StudentScore: 50})

	tests := []struct {
		name    string
		th      exam.Thresholds
		wantErr bool
	}{
		{"valid", exam.Thresholds{AIConfidence: 70, StudentScore: 60}, false},
		{"boundaries", exam.Thresholds{AIConfidence: 0, StudentScore: 100}, false},
		{"confidence too high", exam.Thresholds{AIConfidence: 101, StudentScore: 50}, true},
		{"score negative", exam.Thresholds{AIConfidence: 50, StudentScore: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update(tt.th)
			if (err != nil) != tt.wantErr {
				t.Errorf("Update() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.Thresholds() != tt.th {
				t.Errorf("Thresholds() = %+v, want %+v", s.Thresholds(), tt.th)
			}
		})
	}
}
