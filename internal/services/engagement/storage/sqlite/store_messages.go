package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loopline-hq/loopline/internal/platform/pagination"
	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

var messagePageSize = pagination.PageSizeConfig{Default: 20, Max: 200}

// RecordInboundMessage stores one user-authored message.
func (s *Store) RecordInboundMessage(ctx context.Context, message domain.InboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotConfigured
	}
	id := strings.TrimSpace(message.ID)
	if id == "" {
		return fmt.Errorf("message id is required")
	}
	userID := strings.TrimSpace(message.UserID)
	if userID == "" {
		return domain.ErrUserIDRequired
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO inbound_messages (id, user_id, body, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id,
		userID,
		message.Body,
		toMillis(message.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record inbound message: %w", err)
	}
	return nil
}

// HasInboundMessageBetween reports whether any user message exists in
// [from, to]. A zero to means unbounded.
func (s *Store) HasInboundMessageBetween(ctx context.Context, userID string, from time.Time, to time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, domain.ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, domain.ErrUserIDRequired
	}

	query := `SELECT 1 FROM inbound_messages WHERE user_id = ? AND created_at >= ?`
	args := []any{userID, toMillis(from)}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, toMillis(to))
	}
	query += ` LIMIT 1`

	var found int
	err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check inbound messages: %w", err)
	}
	return true, nil
}

// ListRecentInboundMessages returns the newest messages, newest first.
func (s *Store) ListRecentInboundMessages(ctx context.Context, userID string, limit int) ([]domain.InboundMessage, error) {
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
	limit = pagination.ClampPageSize(limit, messagePageSize)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, user_id, body, created_at
		 FROM inbound_messages
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list inbound messages: %w", err)
	}
	defer rows.Close()

	var out []domain.InboundMessage
	for rows.Next() {
		var message domain.InboundMessage
		var createdAt int64
		if err := rows.Scan(&message.ID, &message.UserID, &message.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan inbound message: %w", err)
		}
		message.CreatedAt = fromMillis(createdAt)
		out = append(out, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbound messages: %w", err)
	}
	return out, nil
}
