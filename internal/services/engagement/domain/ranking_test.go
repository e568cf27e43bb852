package domain

import (
	"context"
	"testing"
	"time"
)

func TestRebuildOrdersByScoreThenCreation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seed := []Opportunity{
		{
			ID: "opp-low", Kind: KindIntroductionOffer, OwnerUserID: "user-1",
			Status: StatusOpen, Role: RoleIntroducee,
			CreatedAt: now.Add(-20 * 24 * time.Hour),
		},
		{
			ID: "opp-high", Kind: KindConnectorOpportunity, OwnerUserID: "user-1",
			Status: StatusOpen, BountyCredits: 50, ConnectionStrength: StrengthFirst,
			CreatedAt: now.Add(-24 * time.Hour),
		},
		{
			ID: "opp-tie-late", Kind: KindIntroductionOffer, OwnerUserID: "user-1",
			Status: StatusOpen, Role: RoleIntroducee,
			CreatedAt: now.Add(-10 * 24 * time.Hour),
		},
	}
	for _, o := range seed {
		if err := store.PutOpportunity(context.Background(), o); err != nil {
			t.Fatalf("seed opportunity: %v", err)
		}
	}

	ranker := NewRanker(store, store, nil, fixedClock(now), Config{})
	entries, err := ranker.Rebuild(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ItemID != "opp-high" || entries[0].ValueScore != 100 {
		t.Fatalf("unexpected top entry: %+v", entries[0])
	}
	// Tied introducee offers (55 each) break by earliest creation.
	if entries[1].ItemID != "opp-low" || entries[2].ItemID != "opp-tie-late" {
		t.Fatalf("unexpected tie break order: %+v", entries[1:])
	}
	for i, entry := range entries {
		if entry.Rank != i+1 {
			t.Fatalf("entry %d has rank %d", i, entry.Rank)
		}
	}
}

func TestRebuildExcludesDormantAndTerminal(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	statuses := map[string]Status{
		"opp-open":      StatusOpen,
		"opp-presented": StatusPresented,
		"opp-paused":    StatusPaused,
		"opp-dormant":   StatusDormant,
		"opp-accepted":  StatusAccepted,
		"opp-declined":  StatusDeclined,
		"opp-cancelled": StatusCancelled,
		"opp-completed": StatusCompleted,
	}
	for id, status := range statuses {
		err := store.PutOpportunity(context.Background(), Opportunity{
			ID: id, Kind: KindIntroductionOffer, OwnerUserID: "user-1",
			Status: status, Role: RoleIntroducee, CreatedAt: now.Add(-time.Hour),
		})
		if err != nil {
			t.Fatalf("seed opportunity: %v", err)
		}
	}

	ranker := NewRanker(store, store, nil, fixedClock(now), Config{})
	entries, err := ranker.Rebuild(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	got := make(map[string]bool, len(entries))
	for _, entry := range entries {
		got[entry.ItemID] = true
	}
	for _, want := range []string{"opp-open", "opp-presented", "opp-paused"} {
		if !got[want] {
			t.Fatalf("expected %s in ranking, got %+v", want, entries)
		}
	}
	if len(entries) != 3 {
		t.Fatalf("expected only non-terminal entries, got %+v", entries)
	}
}

func TestRebuildTruncatesToRankingSize(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	for i := 0; i < 15; i++ {
		err := store.PutOpportunity(context.Background(), Opportunity{
			ID: string(rune('a'+i)) + "-opp", Kind: KindIntroductionOffer,
			OwnerUserID: "user-1", Status: StatusOpen, Role: RoleIntroducee,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed opportunity: %v", err)
		}
	}

	ranker := NewRanker(store, store, nil, fixedClock(now), Config{})
	entries, err := ranker.Rebuild(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected top-10 ranking, got %d entries", len(entries))
	}
}

type staticCandidates struct {
	items []Opportunity
}

func (s staticCandidates) Candidates(context.Context, string) ([]Opportunity, error) {
	return s.items, nil
}

func TestRebuildMergesExternalCandidates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	if err := store.PutOpportunity(context.Background(), Opportunity{
		ID: "opp-stored", Kind: KindIntroductionOffer, OwnerUserID: "user-1",
		Status: StatusOpen, Role: RoleIntroducee, CreatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed opportunity: %v", err)
	}

	extra := staticCandidates{items: []Opportunity{{
		ID: "goal-1", Kind: KindConnectorOpportunity, OwnerUserID: "user-1",
		Status: StatusOpen, BountyCredits: 60, ConnectionStrength: StrengthFirst,
		CreatedAt: now.Add(-time.Hour),
	}}}

	ranker := NewRanker(store, store, extra, fixedClock(now), Config{})
	entries, err := ranker.Rebuild(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected merged ranking of 2, got %d", len(entries))
	}
	if entries[0].ItemID != "goal-1" {
		t.Fatalf("expected external candidate ranked first, got %+v", entries[0])
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	if err := store.PutOpportunity(context.Background(), Opportunity{
		ID: "opp-1", Kind: KindConnectionRequest, OwnerUserID: "user-1",
		Status: StatusOpen, VouchCount: 2, CreatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed opportunity: %v", err)
	}

	ranker := NewRanker(store, store, nil, fixedClock(now), Config{})
	first, err := ranker.Rebuild(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	second, err := ranker.Rebuild(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("rebuild not idempotent: %d vs %d entries", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("entry %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
