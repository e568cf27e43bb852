package domain

import "context"

// OracleContext is the bundle handed to the decision oracle. It carries
// everything the oracle may consider; the engine never lets the response
// widen beyond what the bundle contained.
type OracleContext struct {
	UserID              string
	RankedItems         []PriorityEntry
	OutstandingRequests []Opportunity
	RecentMessages      []InboundMessage
	ProfileFacts        []ProfileFact
	Reengagement        map[string]string
}

// OracleThread is one conversation thread the oracle selected.
type OracleThread struct {
	ItemType Kind
	ItemID   string
	Priority int
	Guidance string
}

// OracleOutcome is the oracle's structured decision. Reasoning is opaque
// audit text and never parsed for control flow.
type OracleOutcome struct {
	ShouldMessage bool
	Reasoning     string
	// ExtendDays delays the next check when declining; zero falls back to
	// the configured default.
	ExtendDays int
	Threads    []OracleThread
}

// Oracle is the external reasoning collaborator that chooses whether and
// what to communicate once throttling allows contact. Implementations may
// be nondeterministic; every guarantee of this engine holds independent of
// what Decide returns.
type Oracle interface {
	Decide(ctx context.Context, bundle OracleContext) (OracleOutcome, error)
}
