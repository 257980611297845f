// Package suggest pulls externally produced AI score suggestions into the
// grading repository. Producing the suggestions is someone else's job;
// this package only fetches and represents them.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Suggestion is one AI-suggested score for a (student, question) pair.
type Suggestion struct {
	StudentID      string  `json:"studentId"`
	QuestionID     string  `json:"questionId"`
	Confidence     float64 `json:"confidence"`
	SuggestedScore float64 `json:"suggestedScore"`
}

// Source supplies a batch of suggestions.
type Source interface {
	Fetch(ctx context.Context) ([]Suggestion, error)
}

// HTTPSource fetches suggestions as a JSON array from a configured URL.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates an HTTP suggestion source.
func NewHTTPSource(url string) (*HTTPSource, error) {
	if url == "" {
		return nil, fmt.Errorf("suggestion source URL is required (GRADE_SUGGEST_URL)")
	}
	return &HTTPSource{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]Suggestion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building suggestion request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching suggestions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("suggestion source returned %d: %s", resp.StatusCode, body)
	}

	var out []Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding suggestions: %w", err)
	}
	return out, nil
}

// StaticSource returns a fixed suggestion set; a test double.
type StaticSource struct {
	Suggestions []Suggestion
	Err         error
}

func (s *StaticSource) Fetch(context.Context) ([]Suggestion, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]Suggestion{}, s.Suggestions...), nil
}
