package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"
)

const orchestratorComponent = "decision_orchestrator"

// CheckOutcome classifies the result of one engagement check.
type CheckOutcome string

const (
	// CheckOutcomeSent means threads were handed to the phrasing renderer.
	CheckOutcomeSent CheckOutcome = "sent"
	// CheckOutcomeNoMessage means the oracle declined or was unavailable.
	CheckOutcomeNoMessage CheckOutcome = "no_message"
	// CheckOutcomeThrottled means the interval gate blocked contact.
	CheckOutcomeThrottled CheckOutcome = "throttled"
	// CheckOutcomePaused means the strike cap halted contact.
	CheckOutcomePaused CheckOutcome = "paused"
	// CheckOutcomeDuplicate means the trigger was already processed.
	CheckOutcomeDuplicate CheckOutcome = "duplicate"
)

// CheckResult reports one engagement check. Threads are structured
// descriptors for the out-of-scope phrasing renderer, never prose.
type CheckResult struct {
	Outcome     CheckOutcome
	Threads     []OracleThread
	NextCheckAt time.Time
}

// Orchestrator composes the throttle, ranker, tracker, and oracle into the
// final message-or-wait decision for one user.
type Orchestrator struct {
	throttle  *Throttle
	ranker    *Ranker
	tracker   *Tracker
	resolver  *Resolver
	oracle    Oracle
	stores    orchestratorStores
	clock     func() time.Time
	newID     func() (string, error)
	cfg       Config
	logf      func(format string, args ...any)
	oracleTTL time.Duration
}

type orchestratorStores struct {
	opportunities OpportunityStore
	attempts      AttemptStore
	followUps     FollowUpStore
	messages      MessageStore
	profile       ProfileStore
	audit         AuditStore
	triggers      TriggerStore
}

// OrchestratorDeps wires an orchestrator.
type OrchestratorDeps struct {
	Throttle      *Throttle
	Ranker        *Ranker
	Tracker       *Tracker
	Resolver      *Resolver
	Oracle        Oracle
	Opportunities OpportunityStore
	Attempts      AttemptStore
	FollowUps     FollowUpStore
	Messages      MessageStore
	Profile       ProfileStore
	Audit         AuditStore
	Triggers      TriggerStore
	Clock         func() time.Time
	NewID         func() (string, error)
	Logf          func(format string, args ...any)
	// OracleTimeout caps one oracle round trip; zero disables the cap.
	OracleTimeout time.Duration
}

// NewOrchestrator constructs a decision orchestrator.
func NewOrchestrator(deps OrchestratorDeps, cfg Config) *Orchestrator {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logf := deps.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Orchestrator{
		throttle: deps.Throttle,
		ranker:   deps.Ranker,
		tracker:  deps.Tracker,
		resolver: deps.Resolver,
		oracle:   deps.Oracle,
		stores: orchestratorStores{
			opportunities: deps.Opportunities,
			attempts:      deps.Attempts,
			followUps:     deps.FollowUps,
			messages:      deps.Messages,
			profile:       deps.Profile,
			audit:         deps.Audit,
			triggers:      deps.Triggers,
		},
		clock:     clock,
		newID:     deps.NewID,
		cfg:       cfg.normalized(),
		logf:      logf,
		oracleTTL: deps.OracleTimeout,
	}
}

// RunCheck executes one engagement check for a user. The trigger id
// deduplicates near-simultaneous triggers: the second arrival of the same
// (user, trigger) pair is a silent no-op. Internal failures can at worst
// delay contact; they never produce a duplicate or contradictory one.
func (o *Orchestrator) RunCheck(ctx context.Context, userID string, triggerID string) (CheckResult, error) {
	if o == nil || o.throttle == nil || o.ranker == nil || o.tracker == nil {
		return CheckResult{}, ErrStoreNotConfigured
	}
	if o.oracle == nil {
		return CheckResult{}, ErrOracleNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CheckResult{}, ErrUserIDRequired
	}
	triggerID = strings.TrimSpace(triggerID)
	if triggerID == "" {
		return CheckResult{}, ErrTriggerIDRequired
	}

	now := o.clock().UTC()

	if o.stores.triggers != nil {
		fresh, err := o.stores.triggers.RegisterTrigger(ctx, userID, triggerID, now)
		if err != nil {
			return CheckResult{}, fmt.Errorf("register trigger: %w", err)
		}
		if !fresh {
			return CheckResult{Outcome: CheckOutcomeDuplicate}, nil
		}
	}

	decision, err := o.throttle.Check(ctx, userID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("throttle check: %w", err)
	}
	if !decision.Allowed {
		outcome := CheckOutcomeThrottled
		if decision.Reason == ReasonPaused {
			// Fully halted pending manual intervention: nothing scheduled.
			return CheckResult{Outcome: CheckOutcomePaused}, nil
		}
		if err := o.scheduleCheck(ctx, userID, decision.NextCheckAt, now); err != nil {
			return CheckResult{}, err
		}
		return CheckResult{Outcome: outcome, NextCheckAt: decision.NextCheckAt}, nil
	}

	ranked, err := o.ranker.Rebuild(ctx, userID)
	if err != nil {
		// Ranking unavailable: fail safe, never fail open to a send.
		return o.failSafe(ctx, userID, "ranking_unavailable", err, now)
	}

	bundle, err := o.assembleBundle(ctx, userID, ranked, now)
	if err != nil {
		return CheckResult{}, err
	}

	outcome, err := o.decide(ctx, bundle)
	if err != nil {
		return o.failSafe(ctx, userID, "oracle_unavailable", err, now)
	}

	o.auditDecision(ctx, userID, outcome, now)

	if !outcome.ShouldMessage {
		extendDays := outcome.ExtendDays
		extension := time.Duration(extendDays) * 24 * time.Hour
		if extension <= 0 {
			extension = o.cfg.DeclineExtension
		}
		nextCheckAt := now.Add(extension)
		if err := o.stores.attempts.AppendAttempt(ctx, EngagementAttempt{
			UserID:    userID,
			Outcome:   OutcomeDeclined,
			CreatedAt: now,
			Metadata:  map[string]string{"extend_days": strconv.Itoa(int(extension / (24 * time.Hour)))},
		}); err != nil {
			return CheckResult{}, fmt.Errorf("append declined attempt: %w", err)
		}
		if err := o.scheduleCheck(ctx, userID, nextCheckAt, now); err != nil {
			return CheckResult{}, err
		}
		return CheckResult{Outcome: CheckOutcomeNoMessage, NextCheckAt: nextCheckAt}, nil
	}

	threads := o.presentThreads(ctx, userID, triggerID, ranked, outcome.Threads)
	if err := o.stores.attempts.AppendAttempt(ctx, EngagementAttempt{
		UserID:    userID,
		Outcome:   OutcomeSent,
		CreatedAt: now,
		Metadata:  map[string]string{"trigger_id": triggerID, "threads": strconv.Itoa(len(threads))},
	}); err != nil {
		return CheckResult{}, fmt.Errorf("append sent attempt: %w", err)
	}
	return CheckResult{Outcome: CheckOutcomeSent, Threads: threads}, nil
}

// decide calls the oracle under its timeout. Both the timeout and any
// transport error collapse to the same unavailable treatment.
func (o *Orchestrator) decide(ctx context.Context, bundle OracleContext) (OracleOutcome, error) {
	if o.oracleTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.oracleTTL)
		defer cancel()
	}
	return o.oracle.Decide(ctx, bundle)
}

func (o *Orchestrator) assembleBundle(ctx context.Context, userID string, ranked []PriorityEntry, now time.Time) (OracleContext, error) {
	bundle := OracleContext{
		UserID:      userID,
		RankedItems: ranked,
		Reengagement: map[string]string{
			"checked_at": now.Format(time.RFC3339),
		},
	}

	if o.stores.opportunities != nil {
		outstanding, err := o.stores.opportunities.ListOutstandingRequests(ctx, userID)
		if err != nil {
			return OracleContext{}, fmt.Errorf("list outstanding requests: %w", err)
		}
		bundle.OutstandingRequests = outstanding
	}
	if o.stores.messages != nil {
		recent, err := o.stores.messages.ListRecentInboundMessages(ctx, userID, o.cfg.RecentMessageLimit)
		if err != nil {
			return OracleContext{}, fmt.Errorf("list recent messages: %w", err)
		}
		bundle.RecentMessages = recent
	}
	if o.stores.profile != nil {
		facts, err := o.stores.profile.ListProfileFacts(ctx, userID)
		if err != nil {
			return OracleContext{}, fmt.Errorf("list profile facts: %w", err)
		}
		bundle.ProfileFacts = facts
	}
	if o.stores.attempts != nil {
		if last, err := o.stores.attempts.LastSentAttempt(ctx, userID, time.Time{}); err == nil {
			bundle.Reengagement["last_engaged_at"] = last.CreatedAt.Format(time.RFC3339)
		} else if !errors.Is(err, ErrNotFound) {
			return OracleContext{}, fmt.Errorf("load last engagement: %w", err)
		}
	}
	return bundle, nil
}

// presentThreads filters the oracle's selections against the current
// ranking and marks the survivors presented. The orchestrator never
// fabricates thread content: a thread referencing an unranked item is
// dropped and logged as an integrity warning.
func (o *Orchestrator) presentThreads(ctx context.Context, userID string, triggerID string, ranked []PriorityEntry, selected []OracleThread) []OracleThread {
	known := make(map[string]bool, len(ranked))
	for _, entry := range ranked {
		known[string(entry.ItemType)+"\x00"+entry.ItemID] = true
	}

	kept := make([]OracleThread, 0, len(selected))
	for _, thread := range selected {
		if !known[string(thread.ItemType)+"\x00"+thread.ItemID] {
			o.logf("engagement: integrity warning: oracle thread references unranked item %s/%s for user %s", thread.ItemType, thread.ItemID, userID)
			o.appendAudit(ctx, AuditEvent{
				ActorComponent: orchestratorComponent,
				Action:         "integrity_warning",
				UserID:         userID,
				ItemType:       thread.ItemType,
				ItemID:         thread.ItemID,
				DetailJSON:     `{"reason":"unranked_item"}`,
				CreatedAt:      o.clock().UTC(),
			})
			continue
		}

		_, err := o.tracker.MarkPresented(ctx, MarkPresentedInput{
			ItemType:         thread.ItemType,
			ItemID:           thread.ItemID,
			PresentationKind: PresentationDedicated,
			ExposureKey:      triggerID + ":" + thread.ItemID,
		})
		if err != nil {
			// A concurrent actor already moved the item; dropping the
			// thread is the safe outcome either way.
			if errors.Is(err, ErrNotPresentable) || errors.Is(err, ErrStaleTransition) {
				o.logf("engagement: thread %s/%s skipped: %v", thread.ItemType, thread.ItemID, err)
				continue
			}
			o.logf("engagement: mark presented %s/%s: %v", thread.ItemType, thread.ItemID, err)
			continue
		}
		kept = append(kept, thread)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Priority < kept[j].Priority })
	return kept
}

// failSafe records an unavailable collaborator and reschedules shortly.
// The user-visible effect is at worst a delayed contact.
func (o *Orchestrator) failSafe(ctx context.Context, userID string, reason string, cause error, now time.Time) (CheckResult, error) {
	o.logf("engagement: %s for user %s: %v", reason, userID, cause)
	nextCheckAt := now.Add(o.cfg.UnavailableRetry)
	o.appendAudit(ctx, AuditEvent{
		ActorComponent: orchestratorComponent,
		Action:         reason,
		UserID:         userID,
		DetailJSON:     fmt.Sprintf(`{"error":%q}`, cause.Error()),
		CreatedAt:      now,
	})
	if err := o.scheduleCheck(ctx, userID, nextCheckAt, now); err != nil {
		return CheckResult{}, err
	}
	return CheckResult{Outcome: CheckOutcomeNoMessage, NextCheckAt: nextCheckAt}, nil
}

func (o *Orchestrator) scheduleCheck(ctx context.Context, userID string, dueAt time.Time, now time.Time) error {
	if o.stores.followUps == nil || o.newID == nil {
		return nil
	}
	id, err := o.newID()
	if err != nil {
		return fmt.Errorf("generate follow-up id: %w", err)
	}
	if err := o.stores.followUps.ScheduleFollowUp(ctx, FollowUp{
		ID:        id,
		UserID:    userID,
		DueAt:     dueAt,
		Status:    FollowUpPending,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("schedule follow-up: %w", err)
	}
	return nil
}

func (o *Orchestrator) auditDecision(ctx context.Context, userID string, outcome OracleOutcome, now time.Time) {
	detail, err := json.Marshal(map[string]any{
		"should_message": outcome.ShouldMessage,
		"reasoning":      outcome.Reasoning,
		"extend_days":    outcome.ExtendDays,
		"threads":        len(outcome.Threads),
	})
	if err != nil {
		detail = nil
	}
	o.appendAudit(ctx, AuditEvent{
		ActorComponent: orchestratorComponent,
		Action:         "oracle_decision",
		UserID:         userID,
		DetailJSON:     string(detail),
		CreatedAt:      now,
	})
}

func (o *Orchestrator) appendAudit(ctx context.Context, event AuditEvent) {
	if o.stores.audit == nil {
		return
	}
	_ = o.stores.audit.AppendAuditEvent(ctx, event)
}
