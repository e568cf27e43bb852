package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

// RegisterTrigger records one (user, trigger) key. It reports false when
// the key was already registered.
func (s *Store) RegisterTrigger(ctx context.Context, userID string, triggerID string, at time.Time) (bool, error) {
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
	triggerID = strings.TrimSpace(triggerID)
	if triggerID == "" {
		return false, domain.ErrTriggerIDRequired
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO engagement_triggers (user_id, trigger_id, created_at)
		 VALUES (?, ?, ?)`,
		userID,
		triggerID,
		toMillis(at),
	)
	if err != nil {
		return false, fmt.Errorf("register trigger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register trigger rows affected: %w", err)
	}
	return affected == 1, nil
}

// RegisterExposure records one logical presentation exposure key. It
// reports false when the same exposure was already counted.
func (s *Store) RegisterExposure(ctx context.Context, itemType domain.Kind, itemID string, exposureKey string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, domain.ErrStoreNotConfigured
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return false, domain.ErrOpportunityIDRequired
	}
	exposureKey = strings.TrimSpace(exposureKey)
	if exposureKey == "" {
		return false, fmt.Errorf("exposure key is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO presentation_exposures (item_type, item_id, exposure_key, created_at)
		 VALUES (?, ?, ?, ?)`,
		string(itemType),
		itemID,
		exposureKey,
		toMillis(at),
	)
	if err != nil {
		return false, fmt.Errorf("register exposure: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register exposure rows affected: %w", err)
	}
	return affected == 1, nil
}
