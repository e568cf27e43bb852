package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const trackerComponent = "presentation_tracker"

// MarkPresentedInput identifies one exposure of an opportunity to its owner.
type MarkPresentedInput struct {
	ItemType         Kind
	ItemID           string
	PresentationKind PresentationKind
	// ExposureKey deduplicates one logical exposure across retries. Two
	// calls with the same key count the presentation once. Empty skips
	// deduplication.
	ExposureKey string
}

// Tracker records opportunity exposures, drives the open → presented →
// dormant lifecycle, and retires follow-ups for dormant items.
type Tracker struct {
	opportunities OpportunityStore
	followUps     FollowUpStore
	exposures     ExposureStore
	audit         AuditStore
	clock         func() time.Time
	cfg           Config
}

// NewTracker constructs a presentation tracker.
func NewTracker(opportunities OpportunityStore, followUps FollowUpStore, exposures ExposureStore, audit AuditStore, clock func() time.Time, cfg Config) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		opportunities: opportunities,
		followUps:     followUps,
		exposures:     exposures,
		audit:         audit,
		clock:         clock,
		cfg:           cfg.normalized(),
	}
}

// MarkPresented counts one exposure and advances the lifecycle: open turns
// presented on the first exposure, presented turns dormant on the second
// unanswered one. Dormancy cancels every pending follow-up referencing the
// item. Returns the opportunity after the write.
//
// Callers must re-check status right before calling: a terminal or dormant
// item is rejected with ErrNotPresentable. A lost write race returns
// ErrStaleTransition, which callers treat as already handled elsewhere.
func (t *Tracker) MarkPresented(ctx context.Context, input MarkPresentedInput) (Opportunity, error) {
	if t == nil || t.opportunities == nil || t.followUps == nil {
		return Opportunity{}, ErrStoreNotConfigured
	}
	itemID := strings.TrimSpace(input.ItemID)
	if itemID == "" {
		return Opportunity{}, ErrOpportunityIDRequired
	}
	if !input.ItemType.Valid() {
		return Opportunity{}, ErrInvalidKind
	}
	if !input.PresentationKind.Valid() {
		return Opportunity{}, ErrInvalidPresentationKind
	}

	opportunity, err := t.opportunities.GetOpportunity(ctx, itemID)
	if err != nil {
		return Opportunity{}, fmt.Errorf("load opportunity %s: %w", itemID, err)
	}
	if opportunity.Kind != input.ItemType {
		return Opportunity{}, ErrNotFound
	}
	if !opportunity.Status.Presentable() {
		return Opportunity{}, ErrNotPresentable
	}

	now := t.clock().UTC()
	if key := strings.TrimSpace(input.ExposureKey); key != "" && t.exposures != nil {
		fresh, err := t.exposures.RegisterExposure(ctx, input.ItemType, itemID, key, now)
		if err != nil {
			return Opportunity{}, fmt.Errorf("register exposure: %w", err)
		}
		if !fresh {
			return opportunity, nil
		}
	}

	before := opportunity.Status
	newCount := opportunity.PresentationCount + 1
	newStatus := before
	var dormantAt *time.Time
	switch {
	case before == StatusOpen:
		newStatus = StatusPresented
	case before == StatusPresented && newCount >= t.cfg.DormancyThreshold:
		newStatus = StatusDormant
		at := now
		dormantAt = &at
	}

	applied, err := t.opportunities.ApplyPresentation(ctx, PresentationUpdate{
		ID:             itemID,
		ExpectedStatus: before,
		ExpectedCount:  opportunity.PresentationCount,
		NewStatus:      newStatus,
		NewCount:       newCount,
		PresentedAt:    now,
		DormantAt:      dormantAt,
	})
	if err != nil {
		return Opportunity{}, fmt.Errorf("apply presentation %s: %w", itemID, err)
	}
	if !applied {
		return Opportunity{}, ErrStaleTransition
	}

	if newStatus == StatusDormant {
		if _, err := t.followUps.CancelFollowUpsForItem(ctx, input.ItemType, itemID, now); err != nil {
			return Opportunity{}, fmt.Errorf("cancel follow-ups for %s: %w", itemID, err)
		}
	}

	t.appendAudit(ctx, AuditEvent{
		ActorComponent: trackerComponent,
		Action:         "mark_presented",
		UserID:         opportunity.OwnerUserID,
		ItemType:       input.ItemType,
		ItemID:         itemID,
		BeforeStatus:   before,
		AfterStatus:    newStatus,
		DetailJSON:     presentationDetail(input.PresentationKind, newCount),
		CreatedAt:      now,
	})

	opportunity.Status = newStatus
	opportunity.PresentationCount = newCount
	presentedAt := now
	opportunity.LastPresentedAt = &presentedAt
	opportunity.DormantAt = dormantAt
	opportunity.UpdatedAt = now
	return opportunity, nil
}

func (t *Tracker) appendAudit(ctx context.Context, event AuditEvent) {
	if t.audit == nil {
		return
	}
	// Audit failures never roll back lifecycle writes.
	_ = t.audit.AppendAuditEvent(ctx, event)
}

func presentationDetail(kind PresentationKind, count int) string {
	detail, err := json.Marshal(map[string]any{
		"presentation_kind":  string(kind),
		"presentation_count": count,
	})
	if err != nil {
		return ""
	}
	return string(detail)
}
