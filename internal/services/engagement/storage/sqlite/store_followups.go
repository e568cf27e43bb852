package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loopline-hq/loopline/internal/platform/pagination"
	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

var followUpPageSize = pagination.PageSizeConfig{Default: 100, Max: 500}

// ScheduleFollowUp inserts one scheduled engagement check.
func (s *Store) ScheduleFollowUp(ctx context.Context, followUp domain.FollowUp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotConfigured
	}
	id := strings.TrimSpace(followUp.ID)
	if id == "" {
		return fmt.Errorf("follow-up id is required")
	}
	userID := strings.TrimSpace(followUp.UserID)
	if userID == "" {
		return domain.ErrUserIDRequired
	}
	status := followUp.Status
	if status == "" {
		status = domain.FollowUpPending
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO follow_ups (id, user_id, item_type, item_id, due_at, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		userID,
		string(followUp.ItemType),
		followUp.ItemID,
		toMillis(followUp.DueAt),
		string(status),
		toMillis(followUp.CreatedAt),
		toMillis(followUp.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("schedule follow-up: %w", err)
	}
	return nil
}

// CancelFollowUpsForItem flips pending follow-ups for one item to cancelled.
// Rows are flipped, never deleted.
func (s *Store) CancelFollowUpsForItem(ctx context.Context, itemType domain.Kind, itemID string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, domain.ErrStoreNotConfigured
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return 0, nil
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE follow_ups
		 SET status = ?, updated_at = ?
		 WHERE item_type = ? AND item_id = ? AND status = ?`,
		string(domain.FollowUpCancelled),
		toMillis(at),
		string(itemType),
		itemID,
		string(domain.FollowUpPending),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel follow-ups: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel follow-ups rows affected: %w", err)
	}
	return int(affected), nil
}

// DueFollowUps returns pending follow-ups due at or before now.
func (s *Store) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]domain.FollowUp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	limit = pagination.ClampPageSize(limit, followUpPageSize)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, user_id, item_type, item_id, due_at, status, created_at, updated_at
		 FROM follow_ups
		 WHERE status = ? AND due_at <= ?
		 ORDER BY due_at ASC
		 LIMIT ?`,
		string(domain.FollowUpPending),
		toMillis(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due follow-ups: %w", err)
	}
	defer rows.Close()

	var out []domain.FollowUp
	for rows.Next() {
		var fu domain.FollowUp
		var itemType, status string
		var dueAt, createdAt, updatedAt int64
		if err := rows.Scan(&fu.ID, &fu.UserID, &itemType, &fu.ItemID, &dueAt, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan follow-up: %w", err)
		}
		fu.ItemType = domain.Kind(itemType)
		fu.Status = domain.FollowUpStatus(status)
		fu.DueAt = fromMillis(dueAt)
		fu.CreatedAt = fromMillis(createdAt)
		fu.UpdatedAt = fromMillis(updatedAt)
		out = append(out, fu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate follow-ups: %w", err)
	}
	return out, nil
}

// ClaimFollowUp flips pending to processing. Losing the race reports false.
func (s *Store) ClaimFollowUp(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.flipFollowUp(ctx, id, domain.FollowUpPending, domain.FollowUpProcessing, at)
}

// CompleteFollowUp flips processing to done.
func (s *Store) CompleteFollowUp(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.flipFollowUp(ctx, id, domain.FollowUpProcessing, domain.FollowUpDone, at)
}

func (s *Store) flipFollowUp(ctx context.Context, id string, expected domain.FollowUpStatus, next domain.FollowUpStatus, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, domain.ErrStoreNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("follow-up id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE follow_ups
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(next),
		toMillis(at),
		id,
		string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("flip follow-up: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("flip follow-up rows affected: %w", err)
	}
	return affected == 1, nil
}
