package exam

// ResolveQuestion finds the question with the given id anywhere in the
// two-level hierarchy. Lookup order: exact top-level match, then each
// top-level question's subquestions. parent is nil for top-level matches.
func ResolveQuestion(questions []Question, id string) (q Question, parent *Question, ok bool) {
	for i := range questions {
		if questions[i].ID == id {
			return questions[i], nil, true
		}
	}
	for i := range questions {
		for _, sub := range questions[i].Subquestions {
			if sub.ID == id {
				return sub, &questions[i], true
			}
		}
	}
	return Question{}, nil, false
}

// FindGradeWithFallback locates the grade to show a grader for a
// subquestion, with a fixed fallback order: the grade recorded under the
// exact question id, else the first grade recorded under any sibling id,
// else none. The fallback is display-only; classification and statistics
// always use the exact lookup with the implicit-zero default.
func FindGradeWithFallback(sub StudentSubmission, questionID string, siblings []Question) (Grade, bool) {
	if g, ok := sub.GradeFor(questionID); ok {
		return g, true
	}
	for _, sib := range siblings {
		if sib.ID == questionID {
			continue
		}
		if g, ok := sub.GradeFor(sib.ID); ok {
			return g, true
		}
	}
	return Grade{}, false
}
