package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

// AppendAttempt records one engagement attempt. The history is append-only.
func (s *Store) AppendAttempt(ctx context.Context, attempt domain.EngagementAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotConfigured
	}
	userID := strings.TrimSpace(attempt.UserID)
	if userID == "" {
		return domain.ErrUserIDRequired
	}

	metadata := "{}"
	if len(attempt.Metadata) > 0 {
		encoded, err := json.Marshal(attempt.Metadata)
		if err != nil {
			return fmt.Errorf("marshal attempt metadata: %w", err)
		}
		metadata = string(encoded)
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO engagement_attempts (user_id, outcome, metadata, created_at)
		 VALUES (?, ?, ?, ?)`,
		userID,
		string(attempt.Outcome),
		metadata,
		toMillis(attempt.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// LastSentAttempt returns the newest sent attempt at or after since.
func (s *Store) LastSentAttempt(ctx context.Context, userID string, since time.Time) (domain.EngagementAttempt, error) {
	if err := ctx.Err(); err != nil {
		return domain.EngagementAttempt{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.EngagementAttempt{}, domain.ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.EngagementAttempt{}, domain.ErrUserIDRequired
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, outcome, metadata, created_at
		 FROM engagement_attempts
		 WHERE user_id = ? AND outcome = ? AND created_at >= ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
		string(domain.OutcomeSent),
		toMillis(since),
	)
	attempt, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.EngagementAttempt{}, domain.ErrNotFound
		}
		return domain.EngagementAttempt{}, fmt.Errorf("last sent attempt: %w", err)
	}
	return attempt, nil
}

// ListSentAttempts returns sent attempts at or after since, newest first.
func (s *Store) ListSentAttempts(ctx context.Context, userID string, since time.Time) ([]domain.EngagementAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT user_id, outcome, metadata, created_at
		 FROM engagement_attempts
		 WHERE user_id = ? AND outcome = ? AND created_at >= ?
		 ORDER BY created_at DESC`,
		userID,
		string(domain.OutcomeSent),
		toMillis(since),
	)
	if err != nil {
		return nil, fmt.Errorf("list sent attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.EngagementAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func scanAttempt(row rowScanner) (domain.EngagementAttempt, error) {
	var attempt domain.EngagementAttempt
	var outcome, metadata string
	var createdAt int64
	if err := row.Scan(&attempt.UserID, &outcome, &metadata, &createdAt); err != nil {
		return domain.EngagementAttempt{}, err
	}
	attempt.Outcome = domain.AttemptOutcome(outcome)
	attempt.CreatedAt = fromMillis(createdAt)
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &attempt.Metadata); err != nil {
			return domain.EngagementAttempt{}, fmt.Errorf("unmarshal attempt metadata: %w", err)
		}
	}
	return attempt, nil
}
