package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/grademark/grademark/internal/exam"
	"github.com/grademark/grademark/internal/grading"
	"github.com/grademark/grademark/internal/httpapi"
	"github.com/grademark/grademark/internal/suggest"
)

func apiRepo() *exam.Repository {
	return &exam.Repository{
		ExamID: "midterm",
		Questions: []exam.Question{
			{ID: "Q1", Name: "Sorting", Points: 10},
			{ID: "Q2", Name: "Graphs", Points: 10, Subquestions: []exam.Question{
				{ID: "Q2.A", Points: 5},
				{ID: "Q2.B", Points: 5},
			}},
		},
		StudentSubmissions: []exam.StudentSubmission{
			{ID: "s1", Name: "Aisyah", Grades: []exam.Grade{
				{QuestionID: "Q1", Confidence: 90, AISuggestedScore: 8},
				{QuestionID: "Q2.A", Confidence: 70, AISuggestedScore: 4},
			}},
			{ID: "s2", Name: "Ben", Grades: []exam.Grade{
				{QuestionID: "Q1", Confidence: 40, AISuggestedScore: 3},
			}},
		},
	}
}

func newTestHandler(t *testing.T, cfg httpapi.Config) http.Handler {
	t.Helper()
	if cfg.Service == nil {
		cfg.Service = grading.NewService(grading.ServiceConfig{
			Store:  grading.NewMemoryStore(apiRepo()),
			Events: grading.NewMemoryEventLogger(),
		})
	}
	return httpapi.New(cfg).Routes()
}

func doJSON(t *testing.T, h http.Handler, method, target, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decoding %s %s response: %v\nbody: %s", method, target, err, rec.Body)
		}
	}
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", rec.Code)
	}
}

func TestStats_NoData(t *testing.T) {
	svc := grading.NewService(grading.ServiceConfig{Store: grading.NewMemoryStore(nil)})
	h := newTestHandler(t, httpapi.Config{Service: svc})

	var resp map[string]bool
	rec := doJSON(t, h, http.MethodGet, "/api/v1/stats", "", &resp)
	if rec.Code != http.StatusOK || !resp["noData"] {
		t.Errorf("empty-store stats = %d %v, want 200 noData", rec.Code, resp)
	}
}

func TestStats_WithData(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})

	var resp struct {
		Global struct {
			TotalWeight float64 `json:"totalWeight"`
		} `json:"globalStats"`
		Questions map[string]json.RawMessage `json:"questionStats"`
	}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/stats", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d, want 200", rec.Code)
	}
	if resp.Global.TotalWeight < 99.99 || resp.Global.TotalWeight > 100.01 {
		t.Errorf("totalWeight = %v, want about 100", resp.Global.TotalWeight)
	}
	if len(resp.Questions) != 2 {
		t.Errorf("questionStats has %d entries, want 2", len(resp.Questions))
	}
}

func TestTriage_Filters(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})

	var resp struct {
		Items []struct {
			TaskLabel   string `json:"taskLabel"`
			StudentName string `json:"studentName"`
		} `json:"items"`
		Count int `json:"count"`
	}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/triage?student=BEN", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("triage = %d, want 200", rec.Code)
	}
	if resp.Count == 0 {
		t.Fatal("case-folded student filter matched nothing")
	}
	for _, item := range resp.Items {
		if item.StudentName != "Ben" {
			t.Errorf("filtered list leaked %q", item.StudentName)
		}
	}
}

func TestGetGrade_SiblingFallback(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})

	// Q2.B has no grade; the editor prefill falls back to sibling Q2.A.
	var resp struct {
		Grade     exam.Grade `json:"grade"`
		Found     bool       `json:"found"`
		MaxPoints float64    `json:"maxPoints"`
	}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/submissions/s1/grades/Q2.B", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("get grade = %d, want 200", rec.Code)
	}
	if !resp.Found || resp.Grade.QuestionID != "Q2.A" {
		t.Errorf("fallback grade = %+v found=%v, want sibling Q2.A", resp.Grade, resp.Found)
	}
	if resp.MaxPoints != 5 {
		t.Errorf("maxPoints = %v, want 5", resp.MaxPoints)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/submissions/s1/grades/QX", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown question = %d, want 404", rec.Code)
	}
}

func TestRecordScore(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})

	var resp struct {
		Grade exam.Grade `json:"grade"`
	}
	rec := doJSON(t, h, http.MethodPost, "/api/v1/submissions/s1/grades/Q1",
		`{"score": 9, "comment": "clean proof", "grader": "ta-lim"}`, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("record score = %d, want 200\nbody: %s", rec.Code, rec.Body)
	}
	if resp.Grade.ManualStatus != 1 || resp.Grade.Score == nil || *resp.Grade.Score != 9 {
		t.Errorf("grade = %+v, want status 1 score 9", resp.Grade)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/submissions/s1/grades/Q1", `{"comment": "no score"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing score = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/submissions/s1/grades/Q1", `{"score": 99}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("out-of-range score = %d, want 422", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("grader-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generating hash: %v", err)
	}
	h := newTestHandler(t, httpapi.Config{TokenHash: string(hash)})

	body := `{"score": 9}`

	rec := doJSON(t, h, http.MethodPost, "/api/v1/submissions/s1/grades/Q1", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/s1/grades/Q1", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/submissions/s1/grades/Q1", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer grader-token")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200\nbody: %s", w.Code, w.Body)
	}

	// Read endpoints stay open.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("unauthenticated stats = %d, want 200", rec.Code)
	}
}

func TestThresholds(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})

	var th exam.Thresholds
	rec := doJSON(t, h, http.MethodGet, "/api/v1/thresholds", "", &th)
	if rec.Code != http.StatusOK || th.AIConfidence != 80 || th.StudentScore != 50 {
		t.Errorf("defaults = %d %+v, want 200 {80 50}", rec.Code, th)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/v1/thresholds",
		`{"aiConfidenceThreshold": 70, "studentScoreThreshold": 60}`, &th)
	if rec.Code != http.StatusOK || th.AIConfidence != 70 {
		t.Errorf("update = %d %+v, want 200 confidence 70", rec.Code, th)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/v1/thresholds",
		`{"aiConfidenceThreshold": 170, "studentScoreThreshold": 60}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid update = %d, want 422", rec.Code)
	}
}

func TestImport(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})

	doc := `{
		"examId": "final",
		"questions": [{"id": "F1", "points": 20}],
		"studentSubmissions": [
			{"id": "s9", "name": "Chen", "grades": [{"questionId": "F1", "confidence": 55, "aiSuggestedScore": 11}]}
		]
	}`
	var resp map[string]int
	rec := doJSON(t, h, http.MethodPost, "/api/v1/import", doc, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d, want 200\nbody: %s", rec.Code, rec.Body)
	}
	if resp["submissions"] != 1 || resp["questions"] != 1 {
		t.Errorf("import summary = %v", resp)
	}

	// The store now holds the new exam.
	var sub exam.StudentSubmission
	rec = doJSON(t, h, http.MethodGet, "/api/v1/submissions/s9", "", &sub)
	if rec.Code != http.StatusOK || sub.Name != "Chen" {
		t.Errorf("imported submission = %d %+v", rec.Code, sub)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/import", `{"questions": "nope"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid document = %d, want 422", rec.Code)
	}
	var verr struct {
		Problems []string `json:"problems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verr); err != nil || len(verr.Problems) == 0 {
		t.Errorf("422 body lacks problems: %s", rec.Body)
	}
}

func TestRefreshSuggestions(t *testing.T) {
	src := &suggest.StaticSource{Suggestions: []suggest.Suggestion{
		{StudentID: "s2", QuestionID: "Q2.A", Confidence: 65, SuggestedScore: 3},
		{StudentID: "ghost", QuestionID: "Q1", Confidence: 10, SuggestedScore: 1},
	}}
	h := newTestHandler(t, httpapi.Config{Suggestions: src})

	var resp map[string]int
	rec := doJSON(t, h, http.MethodPost, "/api/v1/suggestions/refresh", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d, want 200\nbody: %s", rec.Code, rec.Body)
	}
	if resp["applied"] != 1 {
		t.Errorf("applied = %d, want 1 (unknown student skipped)", resp["applied"])
	}
}

func TestRefreshSuggestions_Disabled(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})
	rec := doJSON(t, h, http.MethodPost, "/api/v1/suggestions/refresh", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("refresh without source = %d, want 404", rec.Code)
	}
}

func TestExport(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/export", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("export body is not a zip archive")
	}
}

func TestExport_Empty(t *testing.T) {
	svc := grading.NewService(grading.ServiceConfig{Store: grading.NewMemoryStore(nil)})
	h := newTestHandler(t, httpapi.Config{Service: svc})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/export", "", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("empty export = %d, want 409", rec.Code)
	}
}

func TestWorkload(t *testing.T) {
	h := newTestHandler(t, httpapi.Config{})

	doJSON(t, h, http.MethodPost, "/api/v1/submissions/s1/grades/Q1", `{"score": 9, "grader": "ta-lim"}`, nil)
	doJSON(t, h, http.MethodPost, "/api/v1/submissions/s2/grades/Q1", `{"score": 5, "grader": "ta-lim"}`, nil)

	var workload map[string]int
	rec := doJSON(t, h, http.MethodGet, "/api/v1/workload", "", &workload)
	if rec.Code != http.StatusOK || workload["ta-lim"] != 2 {
		t.Errorf("workload = %d %v, want ta-lim:2", rec.Code, workload)
	}
}
