// Package session mirrors the repository snapshot into Redis, taking over
// the role the browser's session storage played: a place the grading state
// survives a process restart without requiring PostgreSQL.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grademark/grademark/internal/exam"
)

const keyPrefix = "grademark:session:"

// Mirror writes repository snapshots to Redis under a session key.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMirror creates a session mirror. ttl bounds how long an abandoned
// session's snapshot lingers.
func NewMirror(client *redis.Client, ttl time.Duration) *Mirror {
	return &Mirror{client: client, ttl: ttl}
}

// Save serializes the repository and stores it under the session key.
func (m *Mirror) Save(ctx context.Context, sessionID string, repo *exam.Repository) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	data, err := json.Marshal(repo)
	if err != nil {
		return fmt.Errorf("marshal repository snapshot: %w", err)
	}
	if err := m.client.Set(ctx, keyPrefix+sessionID, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("store repository snapshot: %w", err)
	}
	return nil
}

// Load fetches and decodes the snapshot for a session. The second return
// is false when no snapshot exists.
func (m *Mirror) Load(ctx context.Context, sessionID string) (*exam.Repository, bool, error) {
	data, err := m.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load repository snapshot: %w", err)
	}

	var repo exam.Repository
	if err := json.Unmarshal(data, &repo); err != nil {
		return nil, false, fmt.Errorf("decode repository snapshot: %w", err)
	}
	return &repo, true, nil
}

// Drop removes a session's snapshot.
func (m *Mirror) Drop(ctx context.Context, sessionID string) error {
	return m.client.Del(ctx, keyPrefix+sessionID).Err()
}
