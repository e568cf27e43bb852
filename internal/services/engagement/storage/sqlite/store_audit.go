package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

// AppendAuditEvent records one immutable engine decision record.
func (s *Store) AppendAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotConfigured
	}
	actor := strings.TrimSpace(event.ActorComponent)
	if actor == "" {
		return fmt.Errorf("actor component is required")
	}
	action := strings.TrimSpace(event.Action)
	if action == "" {
		return fmt.Errorf("action is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO audit_events (
		   actor_component, action, user_id, item_type, item_id,
		   before_status, after_status, detail_json, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		actor,
		action,
		event.UserID,
		string(event.ItemType),
		event.ItemID,
		string(event.BeforeStatus),
		string(event.AfterStatus),
		event.DetailJSON,
		toMillis(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
