package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

// PutProfileFact upserts one profile fact.
func (s *Store) PutProfileFact(ctx context.Context, fact domain.ProfileFact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotConfigured
	}
	userID := strings.TrimSpace(fact.UserID)
	if userID == "" {
		return domain.ErrUserIDRequired
	}
	key := strings.TrimSpace(fact.Key)
	if key == "" {
		return fmt.Errorf("fact key is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO profile_facts (user_id, key, value)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, key) DO UPDATE SET
		   value = excluded.value`,
		userID,
		key,
		fact.Value,
	)
	if err != nil {
		return fmt.Errorf("put profile fact: %w", err)
	}
	return nil
}

// ListProfileFacts returns one user's facts in key order.
func (s *Store) ListProfileFacts(ctx context.Context, userID string) ([]domain.ProfileFact, error) {
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
		`SELECT user_id, key, value
		 FROM profile_facts
		 WHERE user_id = ?
		 ORDER BY key ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list profile facts: %w", err)
	}
	defer rows.Close()

	var out []domain.ProfileFact
	for rows.Next() {
		var fact domain.ProfileFact
		if err := rows.Scan(&fact.UserID, &fact.Key, &fact.Value); err != nil {
			return nil, fmt.Errorf("scan profile fact: %w", err)
		}
		out = append(out, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile facts: %w", err)
	}
	return out, nil
}
