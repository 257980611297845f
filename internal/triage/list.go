package triage

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/grademark/grademark/internal/exam"
)

// Item is one row of the triage worklist: a gradable subquestion or the
// overview row for a whole top-level question, for one student.
type Item struct {
	TaskLabel   string   `json:"taskLabel"`
	StudentID   string   `json:"studentId"`
	StudentName string   `json:"studentName"`
	QuestionID  string   `json:"questionId"`
	Confidence  float64  `json:"confidence"`
	Category    Category `json:"category"`
}

// Filters narrow the worklist before it is built. QuestionID matches an
// item's own question or its top-level parent; StudentName is a
// case-folded substring match on the student's display name.
type Filters struct {
	QuestionID  string
	StudentName string
}

var foldCaser = cases.Fold()

func (f Filters) matchStudent(s exam.StudentSubmission) bool {
	if f.StudentName == "" {
		return true
	}
	return strings.Contains(foldCaser.String(s.Name), foldCaser.String(f.StudentName))
}

func (f Filters) matchQuestion(questionID, topLevelID string) bool {
	if f.QuestionID == "" {
		return true
	}
	return f.QuestionID == questionID || f.QuestionID == topLevelID
}

// BuildList produces the sorted triage worklist. For a parent question it
// emits one row per subquestion carrying that subquestion's own category
// and confidence, plus one overview row for the question itself carrying
// the minimum (most urgent) child category and the minimum child
// confidence. Standalone questions emit a single row that is its own
// overview. The result is sorted ascending by (category, confidence):
// graders work top-down, least-certain and least-reviewed first.
func BuildList(repo *exam.Repository, th exam.Thresholds, filters Filters) ([]Item, error) {
	if repo == nil || len(repo.Questions) == 0 || repo.StudentSubmissions == nil {
		return nil, ErrNoData
	}

	items := []Item{}

	for _, sub := range repo.StudentSubmissions {
		if !filters.matchStudent(sub) {
			continue
		}

		for _, q := range repo.Questions {
			if q.IsParent() {
				parentCat := GradedTwicePlus
				parentConf := 0.0
				for i, leaf := range q.Subquestions {
					g, _ := sub.GradeFor(leaf.ID)
					cat := ClassifyGrade(g, leaf.Points, th)

					if cat < parentCat {
						parentCat = cat
					}
					if i == 0 || g.Confidence < parentConf {
						parentConf = g.Confidence
					}

					if filters.matchQuestion(leaf.ID, q.ID) {
						items = append(items, Item{
							TaskLabel:   taskLabel(sub, leaf.ID),
							StudentID:   sub.ID,
							StudentName: sub.Name,
							QuestionID:  leaf.ID,
							Confidence:  g.Confidence,
							Category:    cat,
						})
					}
				}
				if filters.matchQuestion(q.ID, q.ID) {
					items = append(items, Item{
						TaskLabel:   taskLabel(sub, q.ID),
						StudentID:   sub.ID,
						StudentName: sub.Name,
						QuestionID:  q.ID,
						Confidence:  parentConf,
						Category:    parentCat,
					})
				}
				continue
			}

			g, _ := sub.GradeFor(q.ID)
			if filters.matchQuestion(q.ID, q.ID) {
				items = append(items, Item{
					TaskLabel:   taskLabel(sub, q.ID),
					StudentID:   sub.ID,
					StudentName: sub.Name,
					QuestionID:  q.ID,
					Confidence:  g.Confidence,
					Category:    ClassifyGrade(g, q.Points, th),
				})
			}
		}
	}

	slices.SortStableFunc(items, func(a, b Item) int {
		if a.Category != b.Category {
			return int(a.Category) - int(b.Category)
		}
		switch {
		case a.Confidence < b.Confidence:
			return -1
		case a.Confidence > b.Confidence:
			return 1
		}
		return 0
	})

	return items, nil
}

func taskLabel(sub exam.StudentSubmission, questionID string) string {
	return fmt.Sprintf("%s - %s", sub.Name, questionID)
}
