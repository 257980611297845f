package exam

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Definition is an exam definition loaded from YAML: the question
// hierarchy plus display metadata. Grades never appear in definitions.
type Definition struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Questions []Question `yaml:"questions"`
}

// Loader loads and caches exam definitions from the filesystem.
type Loader struct {
	rootDir string
	exams   map[string]Definition
	mu      sync.RWMutex
}

// NewLoader creates an exam loader and loads every definition under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		exams:   make(map[string]Definition),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading exam definitions: %w", err)
	}

	slog.Info("exam definitions loaded", "exams", len(l.exams))
	return l, nil
}

// Get returns an exam definition by ID.
func (l *Loader) Get(id string) (Definition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.exams[id]
	return d, ok
}

// All returns every loaded exam definition.
func (l *Loader) All() []Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	defs := make([]Definition, 0, len(l.exams))
	for _, d := range l.exams {
		defs = append(defs, d)
	}
	return defs
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadDefinition(path)
		}
		return nil
	})
}

func (l *Loader) loadDefinition(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		slog.Warn("skipping invalid exam YAML", "path", path, "error", err)
		return nil
	}

	if def.ID == "" {
		return nil // Not an exam definition
	}

	if err := validateDefinition(def); err != nil {
		slog.Warn("skipping malformed exam definition", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	l.exams[def.ID] = def
	l.mu.Unlock()

	return nil
}

// validateDefinition enforces the two-level hierarchy invariant: a question
// is exactly one of leaf or parent-with-subquestions, and subquestions
// never nest further.
func validateDefinition(def Definition) error {
	seen := make(map[string]bool)
	for _, q := range def.Questions {
		if q.ID == "" {
			return fmt.Errorf("question without id")
		}
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
		for _, sub := range q.Subquestions {
			if sub.ID == "" {
				return fmt.Errorf("subquestion of %q without id", q.ID)
			}
			if seen[sub.ID] {
				return fmt.Errorf("duplicate question id %q", sub.ID)
			}
			seen[sub.ID] = true
			if len(sub.Subquestions) > 0 {
				return fmt.Errorf("subquestion %q nests deeper than two levels", sub.ID)
			}
		}
	}
	return nil
}
