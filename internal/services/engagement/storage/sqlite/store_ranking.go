package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

// ReplaceRanking swaps one user's priority projection in a single
// transaction. Readers always see a complete old or new generation.
func (s *Store) ReplaceRanking(ctx context.Context, userID string, entries []domain.PriorityEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrUserIDRequired
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ranking transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM priority_rankings WHERE user_id = ?`,
		userID,
	); err != nil {
		return fmt.Errorf("clear ranking: %w", err)
	}
	for _, entry := range entries {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO priority_rankings (user_id, rank, item_type, item_id, value_score, status)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			userID,
			entry.Rank,
			string(entry.ItemType),
			entry.ItemID,
			entry.ValueScore,
			string(entry.Status),
		); err != nil {
			return fmt.Errorf("insert ranking entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ranking transaction: %w", err)
	}
	return nil
}

// ListRanking returns one user's priority projection in rank order.
func (s *Store) ListRanking(ctx context.Context, userID string) ([]domain.PriorityEntry, error) {
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
		`SELECT user_id, rank, item_type, item_id, value_score, status
		 FROM priority_rankings
		 WHERE user_id = ?
		 ORDER BY rank ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ranking: %w", err)
	}
	defer rows.Close()

	var out []domain.PriorityEntry
	for rows.Next() {
		var entry domain.PriorityEntry
		var itemType, status string
		if err := rows.Scan(&entry.UserID, &entry.Rank, &itemType, &entry.ItemID, &entry.ValueScore, &status); err != nil {
			return nil, fmt.Errorf("scan ranking entry: %w", err)
		}
		entry.ItemType = domain.Kind(itemType)
		entry.Status = domain.Status(status)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranking: %w", err)
	}
	return out, nil
}
