package oracle

import (
	"context"
	"fmt"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

// staticThreadLimit caps how many ranked items the static oracle selects.
const staticThreadLimit = 3

// Static is a deterministic oracle for local development and tests. It
// messages whenever the ranking is non-empty, selecting the top entries in
// ranking order.
type Static struct{}

// NewStatic builds a static oracle.
func NewStatic() *Static {
	return &Static{}
}

// Decide selects the top ranked items without calling out.
func (s *Static) Decide(_ context.Context, bundle domain.OracleContext) (domain.OracleOutcome, error) {
	if len(bundle.RankedItems) == 0 {
		return domain.OracleOutcome{
			Reasoning: "static oracle: no ranked items",
		}, nil
	}

	limit := staticThreadLimit
	if limit > len(bundle.RankedItems) {
		limit = len(bundle.RankedItems)
	}
	outcome := domain.OracleOutcome{
		ShouldMessage: true,
		Reasoning:     fmt.Sprintf("static oracle: selected top %d of %d ranked items", limit, len(bundle.RankedItems)),
	}
	for i, entry := range bundle.RankedItems[:limit] {
		outcome.Threads = append(outcome.Threads, domain.OracleThread{
			ItemType: entry.ItemType,
			ItemID:   entry.ItemID,
			Priority: i + 1,
		})
	}
	return outcome, nil
}
