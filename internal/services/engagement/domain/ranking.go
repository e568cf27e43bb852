package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CandidateSource supplies externally produced candidates (for example
// goal-type items) to merge into a user's ranking alongside stored
// opportunities.
type CandidateSource interface {
	Candidates(ctx context.Context, userID string) ([]Opportunity, error)
}

// Ranker rebuilds the per-user priority projection.
type Ranker struct {
	opportunities OpportunityStore
	ranking       RankingStore
	extra         CandidateSource
	clock         func() time.Time
	cfg           Config
}

// NewRanker constructs a ranking aggregator. extra may be nil.
func NewRanker(opportunities OpportunityStore, ranking RankingStore, extra CandidateSource, clock func() time.Time, cfg Config) *Ranker {
	if clock == nil {
		clock = time.Now
	}
	return &Ranker{
		opportunities: opportunities,
		ranking:       ranking,
		extra:         extra,
		clock:         clock,
		cfg:           cfg.normalized(),
	}
}

// Rebuild recomputes and swaps the user's ranking projection, returning the
// new entries. Identical inputs yield identical output: ties break by
// earliest creation, then id.
func (r *Ranker) Rebuild(ctx context.Context, userID string) ([]PriorityEntry, error) {
	if r == nil || r.opportunities == nil || r.ranking == nil {
		return nil, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	candidates, err := r.opportunities.ListRankable(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rankable opportunities: %w", err)
	}
	if r.extra != nil {
		extras, err := r.extra.Candidates(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list external candidates: %w", err)
		}
		candidates = append(candidates, extras...)
	}

	now := r.clock().UTC()
	type scored struct {
		opportunity Opportunity
		score       int
	}
	pool := make([]scored, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Status == StatusDormant || candidate.Status.Terminal() {
			continue
		}
		pool = append(pool, scored{opportunity: candidate, score: Score(candidate, now)})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		if !pool[i].opportunity.CreatedAt.Equal(pool[j].opportunity.CreatedAt) {
			return pool[i].opportunity.CreatedAt.Before(pool[j].opportunity.CreatedAt)
		}
		return pool[i].opportunity.ID < pool[j].opportunity.ID
	})

	if len(pool) > r.cfg.RankingSize {
		pool = pool[:r.cfg.RankingSize]
	}

	entries := make([]PriorityEntry, 0, len(pool))
	for i, item := range pool {
		entries = append(entries, PriorityEntry{
			UserID:     userID,
			Rank:       i + 1,
			ItemType:   item.opportunity.Kind,
			ItemID:     item.opportunity.ID,
			ValueScore: item.score,
			Status:     item.opportunity.Status,
		})
	}

	if err := r.ranking.ReplaceRanking(ctx, userID, entries); err != nil {
		return nil, fmt.Errorf("replace ranking: %w", err)
	}
	return entries, nil
}
