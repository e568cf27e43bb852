package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const throttleComponent = "engagement_throttle"

// ThrottleReason explains a blocked throttle decision.
type ThrottleReason string

const (
	// ReasonInterval means the minimum contact interval has not elapsed.
	ReasonInterval ThrottleReason = "interval"
	// ReasonPaused means the unanswered-strike cap halted proactive contact.
	ReasonPaused ThrottleReason = "paused"
)

// ThrottleDecision is the outcome of one pacing gate evaluation.
type ThrottleDecision struct {
	Allowed bool
	Reason  ThrottleReason
	// NextCheckAt is when a blocked interval decision may be retried.
	// It stays zero for paused decisions: nothing is scheduled until a
	// human intervenes.
	NextCheckAt            time.Time
	RequiresManualOverride bool
}

// Throttle enforces bounded contact pacing before any proactive outreach.
// Its guarantees hold regardless of what the decision oracle returns,
// because the gate runs first and derives only from immutable attempt
// history.
type Throttle struct {
	attempts AttemptStore
	messages MessageStore
	audit    AuditStore
	clock    func() time.Time
	cfg      Config
}

// NewThrottle constructs an engagement throttle.
func NewThrottle(attempts AttemptStore, messages MessageStore, audit AuditStore, clock func() time.Time, cfg Config) *Throttle {
	if clock == nil {
		clock = time.Now
	}
	return &Throttle{
		attempts: attempts,
		messages: messages,
		audit:    audit,
		clock:    clock,
		cfg:      cfg.normalized(),
	}
}

// Check runs the two pacing gates in fixed order: the cheap minimum
// interval check first, then the unanswered-strike scan. Blocked outcomes
// append an attempt record and an audit event; history is never rewritten.
func (t *Throttle) Check(ctx context.Context, userID string) (ThrottleDecision, error) {
	if t == nil || t.attempts == nil || t.messages == nil {
		return ThrottleDecision{}, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ThrottleDecision{}, ErrUserIDRequired
	}

	now := t.clock().UTC()

	blocked, decision, err := t.checkInterval(ctx, userID, now)
	if err != nil {
		return ThrottleDecision{}, err
	}
	if blocked {
		return decision, nil
	}

	blocked, decision, err = t.checkStrikes(ctx, userID, now)
	if err != nil {
		return ThrottleDecision{}, err
	}
	if blocked {
		return decision, nil
	}

	return ThrottleDecision{Allowed: true}, nil
}

func (t *Throttle) checkInterval(ctx context.Context, userID string, now time.Time) (bool, ThrottleDecision, error) {
	last, err := t.attempts.LastSentAttempt(ctx, userID, now.Add(-t.cfg.MinInterval))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, ThrottleDecision{}, nil
		}
		return false, ThrottleDecision{}, fmt.Errorf("load last sent attempt: %w", err)
	}
	// A send exactly MinInterval ago no longer blocks.
	if now.Sub(last.CreatedAt) >= t.cfg.MinInterval {
		return false, ThrottleDecision{}, nil
	}

	wait := t.cfg.MinInterval - now.Sub(last.CreatedAt)
	nextCheckAt := now.Add(ceilDays(wait))
	decision := ThrottleDecision{
		Allowed:     false,
		Reason:      ReasonInterval,
		NextCheckAt: nextCheckAt,
	}

	if err := t.attempts.AppendAttempt(ctx, EngagementAttempt{
		UserID:    userID,
		Outcome:   OutcomeThrottled,
		CreatedAt: now,
		Metadata:  map[string]string{"reason": string(ReasonInterval)},
	}); err != nil {
		return false, ThrottleDecision{}, fmt.Errorf("append throttled attempt: %w", err)
	}
	t.appendAudit(ctx, userID, OutcomeThrottled, map[string]any{
		"reason":        string(ReasonInterval),
		"next_check_at": nextCheckAt.Format(time.RFC3339),
	}, now)
	return true, decision, nil
}

func (t *Throttle) checkStrikes(ctx context.Context, userID string, now time.Time) (bool, ThrottleDecision, error) {
	attempts, err := t.attempts.ListSentAttempts(ctx, userID, now.Add(-t.cfg.StrikeWindow))
	if err != nil {
		return false, ThrottleDecision{}, fmt.Errorf("list sent attempts: %w", err)
	}

	streak := 0
	for _, attempt := range attempts {
		answered, err := t.answered(ctx, userID, attempt.CreatedAt)
		if err != nil {
			return false, ThrottleDecision{}, err
		}
		if answered {
			break
		}
		streak++
	}
	if streak < t.cfg.StrikeCap {
		return false, ThrottleDecision{}, nil
	}

	if err := t.attempts.AppendAttempt(ctx, EngagementAttempt{
		UserID:    userID,
		Outcome:   OutcomePaused,
		CreatedAt: now,
		Metadata: map[string]string{
			"reason":                   string(ReasonPaused),
			"requires_manual_override": "true",
		},
	}); err != nil {
		return false, ThrottleDecision{}, fmt.Errorf("append paused attempt: %w", err)
	}
	t.appendAudit(ctx, userID, OutcomePaused, map[string]any{
		"reason":                   string(ReasonPaused),
		"unanswered_streak":        streak,
		"requires_manual_override": true,
	}, now)

	return true, ThrottleDecision{
		Allowed:                false,
		Reason:                 ReasonPaused,
		RequiresManualOverride: true,
	}, nil
}

// answered reports whether any inbound user message exists at or after the
// attempt. With a configured response window only messages inside
// [attempt, attempt+window] count; the default window is unconstrained.
func (t *Throttle) answered(ctx context.Context, userID string, attemptAt time.Time) (bool, error) {
	var until time.Time
	if t.cfg.ResponseWindow > 0 {
		until = attemptAt.Add(t.cfg.ResponseWindow)
	}
	answered, err := t.messages.HasInboundMessageBetween(ctx, userID, attemptAt, until)
	if err != nil {
		return false, fmt.Errorf("check inbound messages: %w", err)
	}
	return answered, nil
}

func (t *Throttle) appendAudit(ctx context.Context, userID string, outcome AttemptOutcome, detail map[string]any, at time.Time) {
	if t.audit == nil {
		return
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		detailJSON = nil
	}
	_ = t.audit.AppendAuditEvent(ctx, AuditEvent{
		ActorComponent: throttleComponent,
		Action:         "throttle_" + string(outcome),
		UserID:         userID,
		DetailJSON:     string(detailJSON),
		CreatedAt:      at,
	})
}

// ceilDays rounds a positive duration up to whole days.
func ceilDays(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	days := d / (24 * time.Hour)
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days * 24 * time.Hour
}
