package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
	engagementoracle "github.com/loopline-hq/loopline/internal/services/engagement/oracle"
	engagementsqlite "github.com/loopline-hq/loopline/internal/services/engagement/storage/sqlite"
)

func openTempEngagementStore(t *testing.T) *engagementsqlite.Store {
	t.Helper()
	store, err := engagementsqlite.Open(filepath.Join(t.TempDir(), "engagement.db"))
	if err != nil {
		t.Fatalf("open engagement store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close engagement store: %v", err)
		}
	})
	return store
}

func TestBuildOrchestratorRunsCheckAgainstSQLite(t *testing.T) {
	t.Parallel()

	store := openTempEngagementStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.PutOpportunity(ctx, domain.Opportunity{
		ID: "opp-1", Kind: domain.KindIntroductionOffer, OwnerUserID: "user-1",
		Status: domain.StatusOpen, Role: domain.RoleConnector, BountyCredits: 40,
		CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed opportunity: %v", err)
	}

	orchestrator := BuildOrchestrator(store, engagementoracle.NewStatic(), domain.DefaultConfig(), time.Second)

	result, err := orchestrator.RunCheck(ctx, "user-1", "trig-1")
	if err != nil {
		t.Fatalf("run check: %v", err)
	}
	if result.Outcome != domain.CheckOutcomeSent {
		t.Fatalf("expected sent outcome, got %+v", result)
	}
	if len(result.Threads) != 1 || result.Threads[0].ItemID != "opp-1" {
		t.Fatalf("unexpected threads %+v", result.Threads)
	}

	presented, err := store.GetOpportunity(ctx, "opp-1")
	if err != nil {
		t.Fatalf("get opportunity: %v", err)
	}
	if presented.Status != domain.StatusPresented || presented.PresentationCount != 1 {
		t.Fatalf("opportunity not presented: %+v", presented)
	}

	ranking, err := store.ListRanking(ctx, "user-1")
	if err != nil {
		t.Fatalf("list ranking: %v", err)
	}
	if len(ranking) != 1 || ranking[0].ItemID != "opp-1" {
		t.Fatalf("unexpected ranking %+v", ranking)
	}

	// Replaying the same trigger is a silent no-op.
	replay, err := orchestrator.RunCheck(ctx, "user-1", "trig-1")
	if err != nil {
		t.Fatalf("replay check: %v", err)
	}
	if replay.Outcome != domain.CheckOutcomeDuplicate {
		t.Fatalf("expected duplicate outcome, got %+v", replay)
	}

	// A new trigger inside the contact interval is throttled.
	throttled, err := orchestrator.RunCheck(ctx, "user-1", "trig-2")
	if err != nil {
		t.Fatalf("throttled check: %v", err)
	}
	if throttled.Outcome != domain.CheckOutcomeThrottled {
		t.Fatalf("expected throttled outcome, got %+v", throttled)
	}
	if throttled.NextCheckAt.IsZero() {
		t.Fatal("throttled check must schedule a recheck")
	}
}
