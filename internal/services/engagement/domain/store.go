package domain

import (
	"context"
	"time"
)

// AttemptOutcome classifies one engagement attempt record.
type AttemptOutcome string

const (
	// OutcomeSent means a proactive contact was handed to the renderer.
	OutcomeSent AttemptOutcome = "sent"
	// OutcomeThrottled means the minimum-interval gate blocked contact.
	OutcomeThrottled AttemptOutcome = "throttled"
	// OutcomePaused means the strike cap halted contact pending manual review.
	OutcomePaused AttemptOutcome = "paused"
	// OutcomeDeclined means the oracle chose not to message.
	OutcomeDeclined AttemptOutcome = "declined"
)

// EngagementAttempt is one append-only proactive-contact decision record.
// History is immutable; throttle decisions derive from it and are never
// rewritten.
type EngagementAttempt struct {
	UserID    string
	Outcome   AttemptOutcome
	CreatedAt time.Time
	Metadata  map[string]string
}

// PriorityEntry is one row of the denormalized per-user ranking projection.
type PriorityEntry struct {
	UserID     string
	Rank       int
	ItemType   Kind
	ItemID     string
	ValueScore int
	Status     Status
}

// FollowUpStatus is the lifecycle of a scheduled engagement check.
type FollowUpStatus string

const (
	// FollowUpPending awaits its due time.
	FollowUpPending FollowUpStatus = "pending"
	// FollowUpProcessing is claimed by a running check.
	FollowUpProcessing FollowUpStatus = "processing"
	// FollowUpDone finished a check.
	FollowUpDone FollowUpStatus = "done"
	// FollowUpCancelled was retired without running; rows are flipped,
	// never deleted, to preserve audit history.
	FollowUpCancelled FollowUpStatus = "cancelled"
)

// FollowUp is one scheduled engagement check. Item fields are empty for
// user-level rechecks and set for opportunity follow-ups.
type FollowUp struct {
	ID        string
	UserID    string
	ItemType  Kind
	ItemID    string
	DueAt     time.Time
	Status    FollowUpStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InboundMessage is one user-authored message recorded by the upstream
// transport. The engine only reads these: they reset unanswered streaks
// and feed the oracle's conversation window.
type InboundMessage struct {
	ID        string
	UserID    string
	Body      string
	CreatedAt time.Time
}

// ProfileFact is one key/value fact about a user supplied to the oracle.
type ProfileFact struct {
	UserID string
	Key    string
	Value  string
}

// AuditEvent is one immutable record of an engine decision or mutation.
type AuditEvent struct {
	ActorComponent string
	Action         string
	UserID         string
	ItemType       Kind
	ItemID         string
	BeforeStatus   Status
	AfterStatus    Status
	DetailJSON     string
	CreatedAt      time.Time
}

// PresentationUpdate describes one conditional presentation write. The
// store applies it only when the row still matches the expected status
// and count, so two racing exposures cannot double-count.
type PresentationUpdate struct {
	ID             string
	ExpectedStatus Status
	ExpectedCount  int
	NewStatus      Status
	NewCount       int
	PresentedAt    time.Time
	DormantAt      *time.Time
}

// OpportunityStore persists opportunity rows. All status mutations are
// single-row conditional updates guarded by an expected prior status.
type OpportunityStore interface {
	PutOpportunity(ctx context.Context, opportunity Opportunity) error
	GetOpportunity(ctx context.Context, id string) (Opportunity, error)
	// ListRankable returns the owner's non-terminal opportunities.
	ListRankable(ctx context.Context, ownerUserID string) ([]Opportunity, error)
	// ListOutstandingRequests returns the owner's presentable connection requests.
	ListOutstandingRequests(ctx context.Context, ownerUserID string) ([]Opportunity, error)
	// ListConnectorSiblings returns connector opportunities for the same
	// prospect, excluding excludeID, restricted to the given statuses.
	ListConnectorSiblings(ctx context.Context, prospectID string, excludeID string, statuses []Status) ([]Opportunity, error)
	// TransitionStatus flips status only when the row currently holds the
	// expected status. It reports false when the precondition failed.
	TransitionStatus(ctx context.Context, id string, expected Status, next Status, at time.Time) (bool, error)
	// AcceptExclusive flips a presentable row to accepted only while no
	// sibling for the same prospect already holds accepted. The check and
	// flip are one atomic write, so racing accepts on siblings can never
	// both succeed.
	AcceptExclusive(ctx context.Context, id string, at time.Time) (bool, error)
	// ApplyPresentation applies a guarded presentation update. It reports
	// false when the precondition failed.
	ApplyPresentation(ctx context.Context, update PresentationUpdate) (bool, error)
}

// AttemptStore persists the append-only engagement attempt history.
type AttemptStore interface {
	AppendAttempt(ctx context.Context, attempt EngagementAttempt) error
	// LastSentAttempt returns the newest sent attempt at or after since,
	// or ErrNotFound.
	LastSentAttempt(ctx context.Context, userID string, since time.Time) (EngagementAttempt, error)
	// ListSentAttempts returns sent attempts at or after since, newest first.
	ListSentAttempts(ctx context.Context, userID string, since time.Time) ([]EngagementAttempt, error)
}

// RankingStore persists the per-user priority projection. ReplaceRanking
// swaps the whole projection in one transaction so a reader always sees a
// complete old or complete new generation.
type RankingStore interface {
	ReplaceRanking(ctx context.Context, userID string, entries []PriorityEntry) error
	ListRanking(ctx context.Context, userID string) ([]PriorityEntry, error)
}

// FollowUpStore persists scheduled engagement checks.
type FollowUpStore interface {
	ScheduleFollowUp(ctx context.Context, followUp FollowUp) error
	// CancelFollowUpsForItem flips pending follow-ups for one item to
	// cancelled and returns how many rows changed. Cancelling an already
	// cancelled follow-up is a no-op.
	CancelFollowUpsForItem(ctx context.Context, itemType Kind, itemID string, at time.Time) (int, error)
	// DueFollowUps returns pending follow-ups due at or before now.
	DueFollowUps(ctx context.Context, now time.Time, limit int) ([]FollowUp, error)
	// ClaimFollowUp flips pending to processing. Losing the claim race is
	// not an error: the method reports false and the caller exits silently.
	ClaimFollowUp(ctx context.Context, id string, at time.Time) (bool, error)
	// CompleteFollowUp flips processing to done.
	CompleteFollowUp(ctx context.Context, id string, at time.Time) (bool, error)
}

// MessageStore reads the inbound message history.
type MessageStore interface {
	RecordInboundMessage(ctx context.Context, message InboundMessage) error
	// HasInboundMessageBetween reports whether any user message exists in
	// [from, to]. A zero to means unbounded.
	HasInboundMessageBetween(ctx context.Context, userID string, from time.Time, to time.Time) (bool, error)
	// ListRecentInboundMessages returns the newest messages, newest first.
	ListRecentInboundMessages(ctx context.Context, userID string, limit int) ([]InboundMessage, error)
}

// ProfileStore reads profile facts for the oracle context bundle.
type ProfileStore interface {
	PutProfileFact(ctx context.Context, fact ProfileFact) error
	ListProfileFacts(ctx context.Context, userID string) ([]ProfileFact, error)
}

// AuditStore appends immutable audit events.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, event AuditEvent) error
}

// TriggerStore deduplicates engagement checks by (user, trigger) key.
type TriggerStore interface {
	// RegisterTrigger records the key and reports false when it was
	// already registered.
	RegisterTrigger(ctx context.Context, userID string, triggerID string, at time.Time) (bool, error)
}

// ExposureStore deduplicates logical presentation exposures.
type ExposureStore interface {
	// RegisterExposure records the key and reports false when the same
	// logical exposure was already counted.
	RegisterExposure(ctx context.Context, itemType Kind, itemID string, exposureKey string, at time.Time) (bool, error)
}
