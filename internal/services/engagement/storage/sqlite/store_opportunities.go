package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

const opportunityColumns = `id, kind, owner_user_id, counterpart_descriptor, status,
	 presentation_count, last_presented_at, dormant_at, prospect_id,
	 connection_strength, bounty_credits, vouch_count, credits_spent, role,
	 created_at, updated_at`

// PutOpportunity upserts one opportunity row.
func (s *Store) PutOpportunity(ctx context.Context, opportunity domain.Opportunity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotConfigured
	}
	opportunity = opportunity.Normalize()
	if opportunity.ID == "" {
		return domain.ErrOpportunityIDRequired
	}
	if opportunity.OwnerUserID == "" {
		return domain.ErrUserIDRequired
	}
	if !opportunity.Kind.Valid() {
		return domain.ErrInvalidKind
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO opportunities (
		   id, kind, owner_user_id, counterpart_descriptor, status,
		   presentation_count, last_presented_at, dormant_at, prospect_id,
		   connection_strength, bounty_credits, vouch_count, credits_spent, role,
		   created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   counterpart_descriptor = excluded.counterpart_descriptor,
		   status = excluded.status,
		   presentation_count = excluded.presentation_count,
		   last_presented_at = excluded.last_presented_at,
		   dormant_at = excluded.dormant_at,
		   connection_strength = excluded.connection_strength,
		   bounty_credits = excluded.bounty_credits,
		   vouch_count = excluded.vouch_count,
		   credits_spent = excluded.credits_spent,
		   role = excluded.role,
		   updated_at = excluded.updated_at`,
		opportunity.ID,
		string(opportunity.Kind),
		opportunity.OwnerUserID,
		opportunity.CounterpartDescriptor,
		string(opportunity.Status),
		opportunity.PresentationCount,
		toNullMillis(opportunity.LastPresentedAt),
		toNullMillis(opportunity.DormantAt),
		opportunity.ProspectID,
		string(opportunity.ConnectionStrength),
		opportunity.BountyCredits,
		opportunity.VouchCount,
		opportunity.CreditsSpent,
		string(opportunity.Role),
		toMillis(opportunity.CreatedAt),
		toMillis(opportunity.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put opportunity: %w", err)
	}
	return nil
}

// GetOpportunity returns one opportunity by id.
func (s *Store) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Opportunity{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Opportunity{}, domain.ErrStoreNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Opportunity{}, domain.ErrOpportunityIDRequired
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+opportunityColumns+`
		 FROM opportunities
		 WHERE id = ?`,
		id,
	)
	opportunity, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("get opportunity: %w", err)
	}
	return opportunity, nil
}

// ListRankable returns the owner's non-terminal opportunities.
func (s *Store) ListRankable(ctx context.Context, ownerUserID string) ([]domain.Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, domain.ErrUserIDRequired
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+opportunityColumns+`
		 FROM opportunities
		 WHERE owner_user_id = ? AND status IN (?, ?, ?)
		 ORDER BY id ASC`,
		ownerUserID,
		string(domain.StatusOpen),
		string(domain.StatusPresented),
		string(domain.StatusPaused),
	)
	if err != nil {
		return nil, fmt.Errorf("list rankable opportunities: %w", err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// ListOutstandingRequests returns the owner's presentable connection requests.
func (s *Store) ListOutstandingRequests(ctx context.Context, ownerUserID string) ([]domain.Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, domain.ErrUserIDRequired
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+opportunityColumns+`
		 FROM opportunities
		 WHERE owner_user_id = ? AND kind = ? AND status IN (?, ?)
		 ORDER BY id ASC`,
		ownerUserID,
		string(domain.KindConnectionRequest),
		string(domain.StatusOpen),
		string(domain.StatusPresented),
	)
	if err != nil {
		return nil, fmt.Errorf("list outstanding requests: %w", err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// ListConnectorSiblings returns connector opportunities for one prospect,
// excluding excludeID, restricted to the given statuses.
func (s *Store) ListConnectorSiblings(ctx context.Context, prospectID string, excludeID string, statuses []domain.Status) ([]domain.Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	prospectID = strings.TrimSpace(prospectID)
	if prospectID == "" {
		return nil, nil
	}

	query := `SELECT ` + opportunityColumns + `
	 FROM opportunities
	 WHERE kind = ? AND prospect_id = ? AND id <> ?`
	args := []any{string(domain.KindConnectorOpportunity), prospectID, strings.TrimSpace(excludeID)}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list connector siblings: %w", err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// TransitionStatus flips status only when the row holds the expected status.
func (s *Store) TransitionStatus(ctx context.Context, id string, expected domain.Status, next domain.Status, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, domain.ErrStoreNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, domain.ErrOpportunityIDRequired
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE opportunities
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(next),
		toMillis(at),
		id,
		string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition status rows affected: %w", err)
	}
	return affected == 1, nil
}

// AcceptExclusive flips a presentable row to accepted only while no sibling
// for the same prospect already holds accepted. The check and flip are one
// statement so racing accepts on siblings cannot both succeed.
func (s *Store) AcceptExclusive(ctx context.Context, id string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, domain.ErrStoreNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, domain.ErrOpportunityIDRequired
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE opportunities
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)
		   AND (prospect_id = '' OR NOT EXISTS (
		     SELECT 1 FROM opportunities sibling
		     WHERE sibling.id <> opportunities.id
		       AND sibling.prospect_id = opportunities.prospect_id
		       AND sibling.status = ?
		   ))`,
		string(domain.StatusAccepted),
		toMillis(at),
		id,
		string(domain.StatusOpen),
		string(domain.StatusPresented),
		string(domain.StatusAccepted),
	)
	if err != nil {
		return false, fmt.Errorf("accept opportunity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accept opportunity rows affected: %w", err)
	}
	return affected == 1, nil
}

// ApplyPresentation applies a guarded presentation update.
func (s *Store) ApplyPresentation(ctx context.Context, update domain.PresentationUpdate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, domain.ErrStoreNotConfigured
	}
	id := strings.TrimSpace(update.ID)
	if id == "" {
		return false, domain.ErrOpportunityIDRequired
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE opportunities
		 SET status = ?, presentation_count = ?, last_presented_at = ?, dormant_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND presentation_count = ?`,
		string(update.NewStatus),
		update.NewCount,
		toMillis(update.PresentedAt),
		toNullMillis(update.DormantAt),
		toMillis(update.PresentedAt),
		id,
		string(update.ExpectedStatus),
		update.ExpectedCount,
	)
	if err != nil {
		return false, fmt.Errorf("apply presentation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply presentation rows affected: %w", err)
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (domain.Opportunity, error) {
	var o domain.Opportunity
	var kind, status, strength, role string
	var lastPresentedAt, dormantAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&o.ID,
		&kind,
		&o.OwnerUserID,
		&o.CounterpartDescriptor,
		&status,
		&o.PresentationCount,
		&lastPresentedAt,
		&dormantAt,
		&o.ProspectID,
		&strength,
		&o.BountyCredits,
		&o.VouchCount,
		&o.CreditsSpent,
		&role,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.Opportunity{}, err
	}
	o.Kind = domain.Kind(kind)
	o.Status = domain.Status(status)
	o.ConnectionStrength = domain.ConnectionStrength(strength)
	o.Role = domain.OfferRole(role)
	o.LastPresentedAt = fromNullMillis(lastPresentedAt)
	o.DormantAt = fromNullMillis(dormantAt)
	o.CreatedAt = fromMillis(createdAt)
	o.UpdatedAt = fromMillis(updatedAt)
	return o, nil
}

func collectOpportunities(rows *sql.Rows) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opportunities: %w", err)
	}
	return out, nil
}
