package grading

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grademark/grademark/internal/exam"
)

const dbTimeout = 5 * time.Second

// schema holds the grading tables. The question hierarchy itself is not
// stored; it comes from the exam definition and is injected into the store.
const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id         TEXT PRIMARY KEY,
	exam_id    TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS grades (
	student_id         TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
	question_id        TEXT NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	ai_suggested_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	score              DOUBLE PRECISION,
	manual_status      INTEGER NOT NULL DEFAULT 0,
	comment            TEXT NOT NULL DEFAULT '',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (student_id, question_id)
);

CREATE TABLE IF NOT EXISTS grading_events (
	id         BIGSERIAL PRIMARY KEY,
	student_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	grader     TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore is a PostgreSQL-backed GradeStore for one exam.
type PostgresStore struct {
	pool   *pgxpool.Pool
	examID string
	def    exam.Definition
}

// NewPostgresStore creates a PostgreSQL-backed grade store bound to the
// given exam definition and ensures the grading tables exist.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, def exam.Definition) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if def.ID == "" {
		return nil, fmt.Errorf("exam definition has no id")
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensuring grading schema: %w", err)
	}

	return &PostgresStore{pool: pool, examID: def.ID, def: def}, nil
}

func (s *PostgresStore) Repository() (*exam.Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	repo := &exam.Repository{
		ExamID:    s.examID,
		Questions: s.def.Questions,
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, url FROM submissions WHERE exam_id = $1 ORDER BY id`,
		s.examID,
	)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	index := map[string]int{}
	for rows.Next() {
		var sub exam.StudentSubmission
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.URL); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.Grades = []exam.Grade{}
		index[sub.ID] = len(repo.StudentSubmissions)
		repo.StudentSubmissions = append(repo.StudentSubmissions, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	if repo.StudentSubmissions == nil {
		repo.StudentSubmissions = []exam.StudentSubmission{}
	}

	gradeRows, err := s.pool.Query(ctx,
		`SELECT g.student_id, g.question_id, g.confidence, g.ai_suggested_score, g.score, g.manual_status, g.comment
		 FROM grades g
		 JOIN submissions s ON s.id = g.student_id
		 WHERE s.exam_id = $1`,
		s.examID,
	)
	if err != nil {
		return nil, fmt.Errorf("query grades: %w", err)
	}
	defer gradeRows.Close()

	for gradeRows.Next() {
		var studentID string
		var g exam.Grade
		if err := gradeRows.Scan(&studentID, &g.QuestionID, &g.Confidence, &g.AISuggestedScore, &g.Score, &g.ManualStatus, &g.Comment); err != nil {
			return nil, fmt.Errorf("scan grade: %w", err)
		}
		if i, ok := index[studentID]; ok {
			repo.StudentSubmissions[i].Grades = append(repo.StudentSubmissions[i].Grades, g)
		}
	}
	if err := gradeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grades: %w", err)
	}

	return repo, nil
}

// ReplaceRepository swaps the stored submissions and grades for this exam
// with the imported set, in one transaction.
func (s *PostgresStore) ReplaceRepository(repo *exam.Repository) error {
	if repo == nil {
		return fmt.Errorf("repository is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin import transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM submissions WHERE exam_id = $1`, s.examID); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}

	for _, sub := range repo.StudentSubmissions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO submissions (id, exam_id, name, url) VALUES ($1, $2, $3, $4)`,
			sub.ID, s.examID, sub.Name, sub.URL,
		); err != nil {
			return fmt.Errorf("insert submission %s: %w", sub.ID, err)
		}
		for _, g := range sub.Grades {
			if err := insertGrade(ctx, tx, sub.ID, g); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func insertGrade(ctx context.Context, tx pgx.Tx, studentID string, g exam.Grade) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO grades (student_id, question_id, confidence, ai_suggested_score, score, manual_status, comment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		studentID, g.QuestionID, g.Confidence, g.AISuggestedScore, g.Score, g.ManualStatus, g.Comment,
	)
	if err != nil {
		return fmt.Errorf("insert grade %s/%s: %w", studentID, g.QuestionID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertGrade(studentID string, grade exam.Grade) error {
	if grade.QuestionID == "" {
		return fmt.Errorf("grade question id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO grades (student_id, question_id, confidence, ai_suggested_score, score, manual_status, comment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (student_id, question_id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			ai_suggested_score = EXCLUDED.ai_suggested_score,
			score = EXCLUDED.score,
			manual_status = EXCLUDED.manual_status,
			comment = EXCLUDED.comment,
			updated_at = now()`,
		studentID, grade.QuestionID, grade.Confidence, grade.AISuggestedScore, grade.Score, grade.ManualStatus, grade.Comment,
	)
	if err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("upsert grade %s/%s affected no rows", studentID, grade.QuestionID)
	}
	return nil
}

func (s *PostgresStore) RecordManualPass(studentID, questionID string, score float64, comment string) (exam.Grade, error) {
	q, _, ok := exam.ResolveQuestion(s.def.Questions, questionID)
	if !ok {
		return exam.Grade{}, fmt.Errorf("question not found: %s", questionID)
	}
	if q.IsParent() {
		return exam.Grade{}, fmt.Errorf("question %s is not directly gradable", questionID)
	}
	if score < 0 || score > q.Points {
		return exam.Grade{}, fmt.Errorf("score %v out of range [0, %v] for %s", score, q.Points, questionID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM submissions WHERE id = $1 AND exam_id = $2)`,
		studentID, s.examID,
	).Scan(&exists); err != nil {
		return exam.Grade{}, fmt.Errorf("check submission: %w", err)
	}
	if !exists {
		return exam.Grade{}, fmt.Errorf("submission not found: %s", studentID)
	}

	var g exam.Grade
	err := s.pool.QueryRow(ctx,
		`INSERT INTO grades (student_id, question_id, score, manual_status, comment)
		 VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT (student_id, question_id) DO UPDATE SET
			score = EXCLUDED.score,
			manual_status = grades.manual_status + 1,
			comment = CASE WHEN EXCLUDED.comment <> '' THEN EXCLUDED.comment ELSE grades.comment END,
			updated_at = now()
		 RETURNING question_id, confidence, ai_suggested_score, score, manual_status, comment`,
		studentID, questionID, score, comment,
	).Scan(&g.QuestionID, &g.Confidence, &g.AISuggestedScore, &g.Score, &g.ManualStatus, &g.Comment)
	if err != nil {
		return exam.Grade{}, fmt.Errorf("record manual pass: %w", err)
	}
	return g, nil
}
