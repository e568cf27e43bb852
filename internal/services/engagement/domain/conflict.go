package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const resolverComponent = "conflict_resolver"

// Resolver reconciles sibling connector opportunities that target the same
// prospect: accepting one pauses the rest, completing one cancels the
// paused rest. Both operations are idempotent and leave rows already in a
// different terminal state untouched.
type Resolver struct {
	opportunities OpportunityStore
	audit         AuditStore
	clock         func() time.Time
}

// NewResolver constructs a conflict resolver.
func NewResolver(opportunities OpportunityStore, audit AuditStore, clock func() time.Time) *Resolver {
	if clock == nil {
		clock = time.Now
	}
	return &Resolver{opportunities: opportunities, audit: audit, clock: clock}
}

// Accept marks a presentable opportunity accepted and pauses its
// presentable connector siblings. The accept itself is exclusive: while a
// sibling for the same prospect holds accepted, the flip fails with
// ErrStaleTransition and nothing is mutated.
func (r *Resolver) Accept(ctx context.Context, opportunityID string) error {
	if r == nil || r.opportunities == nil {
		return ErrStoreNotConfigured
	}
	opportunityID = strings.TrimSpace(opportunityID)
	if opportunityID == "" {
		return ErrOpportunityIDRequired
	}
	opportunity, err := r.opportunities.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return fmt.Errorf("load opportunity %s: %w", opportunityID, err)
	}

	now := r.clock().UTC()
	applied, err := r.opportunities.AcceptExclusive(ctx, opportunityID, now)
	if err != nil {
		return fmt.Errorf("accept opportunity %s: %w", opportunityID, err)
	}
	if !applied {
		return ErrStaleTransition
	}
	r.appendAudit(ctx, AuditEvent{
		ActorComponent: resolverComponent,
		Action:         "accept",
		UserID:         opportunity.OwnerUserID,
		ItemType:       opportunity.Kind,
		ItemID:         opportunityID,
		BeforeStatus:   opportunity.Status,
		AfterStatus:    StatusAccepted,
		CreatedAt:      now,
	})
	return r.OnAccepted(ctx, opportunityID)
}

// Decline marks a presentable opportunity declined. A lost race returns
// ErrStaleTransition, which callers treat as already handled.
func (r *Resolver) Decline(ctx context.Context, opportunityID string) error {
	return r.respond(ctx, opportunityID, "decline", StatusDeclined, []Status{StatusOpen, StatusPresented})
}

// Complete marks an accepted opportunity completed and cancels its paused
// connector siblings.
func (r *Resolver) Complete(ctx context.Context, opportunityID string) error {
	if err := r.respond(ctx, opportunityID, "complete", StatusCompleted, []Status{StatusAccepted}); err != nil {
		return err
	}
	return r.OnCompleted(ctx, opportunityID)
}

func (r *Resolver) respond(ctx context.Context, opportunityID string, action string, to Status, from []Status) error {
	if r == nil || r.opportunities == nil {
		return ErrStoreNotConfigured
	}
	opportunityID = strings.TrimSpace(opportunityID)
	if opportunityID == "" {
		return ErrOpportunityIDRequired
	}
	opportunity, err := r.opportunities.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return fmt.Errorf("load opportunity %s: %w", opportunityID, err)
	}

	now := r.clock().UTC()
	for _, expected := range from {
		if opportunity.Status != expected {
			continue
		}
		applied, err := r.opportunities.TransitionStatus(ctx, opportunityID, expected, to, now)
		if err != nil {
			return fmt.Errorf("%s opportunity %s: %w", action, opportunityID, err)
		}
		if !applied {
			return ErrStaleTransition
		}
		r.appendAudit(ctx, AuditEvent{
			ActorComponent: resolverComponent,
			Action:         action,
			UserID:         opportunity.OwnerUserID,
			ItemType:       opportunity.Kind,
			ItemID:         opportunityID,
			BeforeStatus:   expected,
			AfterStatus:    to,
			CreatedAt:      now,
		})
		return nil
	}
	return ErrStaleTransition
}

// OnAccepted pauses open or presented connector siblings that share the
// accepted opportunity's prospect. Zero siblings is not an error.
func (r *Resolver) OnAccepted(ctx context.Context, opportunityID string) error {
	return r.resolve(ctx, opportunityID, "pause_siblings", []Status{StatusOpen, StatusPresented}, StatusPaused)
}

// OnCompleted cancels paused connector siblings that share the completed
// opportunity's prospect.
func (r *Resolver) OnCompleted(ctx context.Context, opportunityID string) error {
	return r.resolve(ctx, opportunityID, "cancel_siblings", []Status{StatusPaused}, StatusCancelled)
}

func (r *Resolver) resolve(ctx context.Context, opportunityID string, action string, from []Status, to Status) error {
	if r == nil || r.opportunities == nil {
		return ErrStoreNotConfigured
	}
	opportunityID = strings.TrimSpace(opportunityID)
	if opportunityID == "" {
		return ErrOpportunityIDRequired
	}

	opportunity, err := r.opportunities.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return fmt.Errorf("load opportunity %s: %w", opportunityID, err)
	}
	if opportunity.ProspectID == "" {
		return nil
	}

	siblings, err := r.opportunities.ListConnectorSiblings(ctx, opportunity.ProspectID, opportunityID, from)
	if err != nil {
		return fmt.Errorf("list siblings for prospect %s: %w", opportunity.ProspectID, err)
	}

	now := r.clock().UTC()
	for _, sibling := range siblings {
		// Guarded per-row flip: a sibling moved by a concurrent actor is
		// skipped, never overwritten.
		applied, err := r.opportunities.TransitionStatus(ctx, sibling.ID, sibling.Status, to, now)
		if err != nil {
			return fmt.Errorf("transition sibling %s: %w", sibling.ID, err)
		}
		if !applied {
			continue
		}
		r.appendAudit(ctx, AuditEvent{
			ActorComponent: resolverComponent,
			Action:         action,
			UserID:         sibling.OwnerUserID,
			ItemType:       sibling.Kind,
			ItemID:         sibling.ID,
			BeforeStatus:   sibling.Status,
			AfterStatus:    to,
			CreatedAt:      now,
		})
	}
	return nil
}

func (r *Resolver) appendAudit(ctx context.Context, event AuditEvent) {
	if r.audit == nil {
		return
	}
	_ = r.audit.AppendAuditEvent(ctx, event)
}
