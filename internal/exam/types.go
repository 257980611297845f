// Package exam defines the grading data model: the question hierarchy,
// per-student grades, and the repository snapshot the grading UI works on.
package exam

// Question is a node in the two-level question hierarchy. A question is
// either a leaf (gradable directly, Points is its max score) or a parent
// whose Subquestions are the gradable items.
type Question struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	Points       float64    `json:"points" yaml:"points"`
	Subquestions []Question `json:"subquestions,omitempty" yaml:"subquestions,omitempty"`
}

// IsParent reports whether the question's gradable items are its subquestions.
func (q Question) IsParent() bool {
	return len(q.Subquestions) > 0
}

// Leaves returns the gradable items under q: its subquestions when it is a
// parent, otherwise q itself.
func (q Question) Leaves() []Question {
	if q.IsParent() {
		return q.Subquestions
	}
	return []Question{q}
}

// Grade holds the AI suggestion and manual-grading state for one
// (student, question) pair. ManualStatus counts completed human grading
// passes: 0 none, 1 graded once, >=2 graded twice or more.
type Grade struct {
	QuestionID       string   `json:"questionId"`
	Confidence       float64  `json:"confidence"`
	AISuggestedScore float64  `json:"aiSuggestedScore"`
	Score            *float64 `json:"score"`
	ManualStatus     int      `json:"manualStatus"`
	Comment          string   `json:"comment,omitempty"`
}

// EffectiveScore returns the manually assigned score when present, falling
// back to the AI-suggested score.
func (g Grade) EffectiveScore() float64 {
	if g.Score != nil {
		return *g.Score
	}
	return g.AISuggestedScore
}

// StudentSubmission is one student's scanned submission with its grades.
// Grades is an unordered set keyed by QuestionID, unique per student.
type StudentSubmission struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	URL    string  `json:"url,omitempty"`
	Grades []Grade `json:"grades"`
}

// GradeFor returns the grade recorded under exactly questionID, if any.
func (s StudentSubmission) GradeFor(questionID string) (Grade, bool) {
	for _, g := range s.Grades {
		if g.QuestionID == questionID {
			return g, true
		}
	}
	return Grade{}, false
}

// Repository is the full grading state for one exam: the question
// hierarchy plus every student submission. The triage core treats it as a
// read-only snapshot per call.
type Repository struct {
	ExamID             string              `json:"examId,omitempty"`
	Questions          []Question          `json:"questions"`
	StudentSubmissions []StudentSubmission `json:"studentSubmissions"`
}

// Submission returns the submission with the given id.
func (r *Repository) Submission(id string) (*StudentSubmission, bool) {
	for i := range r.StudentSubmissions {
		if r.StudentSubmissions[i].ID == id {
			return &r.StudentSubmissions[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the repository so callers can hand out
// snapshots without exposing the store's backing slices.
func (r *Repository) Clone() *Repository {
	if r == nil {
		return nil
	}
	out := &Repository{
		ExamID:             r.ExamID,
		Questions:          cloneQuestions(r.Questions),
		StudentSubmissions: make([]StudentSubmission, len(r.StudentSubmissions)),
	}
	for i, s := range r.StudentSubmissions {
		cp := s
		cp.Grades = make([]Grade, len(s.Grades))
		for j, g := range s.Grades {
			cp.Grades[j] = g
			if g.Score != nil {
				v := *g.Score
				cp.Grades[j].Score = &v
			}
		}
		out.StudentSubmissions[i] = cp
	}
	return out
}

func cloneQuestions(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = q
		out[i].Subquestions = cloneQuestions(q.Subquestions)
	}
	return out
}

// Thresholds are the two grader-configurable triage knobs, both in [0,100].
// They are read fresh on every classification call; a grader may change
// them live between calls.
type Thresholds struct {
	AIConfidence float64 `json:"aiConfidenceThreshold"`
	StudentScore float64 `json:"studentScoreThreshold"`
}
