package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedConnector(t *testing.T, store *fakeStore, id string, prospectID string, status Status, at time.Time) {
	t.Helper()
	if err := store.PutOpportunity(context.Background(), Opportunity{
		ID: id, Kind: KindConnectorOpportunity, OwnerUserID: "user-1",
		ProspectID: prospectID, Status: status, CreatedAt: at,
	}); err != nil {
		t.Fatalf("seed connector %s: %v", id, err)
	}
}

func TestOnAcceptedPausesPresentableSiblings(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedConnector(t, store, "opp-accepted", "prospect-1", StatusAccepted, now)
	seedConnector(t, store, "opp-open", "prospect-1", StatusOpen, now)
	seedConnector(t, store, "opp-presented", "prospect-1", StatusPresented, now)
	seedConnector(t, store, "opp-declined", "prospect-1", StatusDeclined, now)
	seedConnector(t, store, "opp-other-prospect", "prospect-2", StatusOpen, now)

	resolver := NewResolver(store, store, fixedClock(now))
	if err := resolver.OnAccepted(context.Background(), "opp-accepted"); err != nil {
		t.Fatalf("on accepted: %v", err)
	}

	wantStatus := map[string]Status{
		"opp-accepted":       StatusAccepted,
		"opp-open":           StatusPaused,
		"opp-presented":      StatusPaused,
		"opp-declined":       StatusDeclined,
		"opp-other-prospect": StatusOpen,
	}
	for id, want := range wantStatus {
		got, err := store.GetOpportunity(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if got.Status != want {
			t.Fatalf("%s status = %s, want %s", id, got.Status, want)
		}
	}
}

func TestOnCompletedCancelsPausedSiblings(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedConnector(t, store, "opp-completed", "prospect-1", StatusCompleted, now)
	seedConnector(t, store, "opp-paused", "prospect-1", StatusPaused, now)
	seedConnector(t, store, "opp-open", "prospect-1", StatusOpen, now)

	resolver := NewResolver(store, store, fixedClock(now))
	if err := resolver.OnCompleted(context.Background(), "opp-completed"); err != nil {
		t.Fatalf("on completed: %v", err)
	}

	paused, err := store.GetOpportunity(context.Background(), "opp-paused")
	if err != nil {
		t.Fatalf("get paused sibling: %v", err)
	}
	if paused.Status != StatusCancelled {
		t.Fatalf("paused sibling status = %s, want cancelled", paused.Status)
	}
	open, err := store.GetOpportunity(context.Background(), "opp-open")
	if err != nil {
		t.Fatalf("get open sibling: %v", err)
	}
	if open.Status != StatusOpen {
		t.Fatalf("open sibling status = %s, want open (only paused siblings cancel)", open.Status)
	}
}

func TestResolverIdempotentAndTolerantOfNoSiblings(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedConnector(t, store, "opp-solo", "prospect-1", StatusAccepted, now)

	resolver := NewResolver(store, store, fixedClock(now))
	if err := resolver.OnAccepted(context.Background(), "opp-solo"); err != nil {
		t.Fatalf("first on accepted: %v", err)
	}
	if err := resolver.OnAccepted(context.Background(), "opp-solo"); err != nil {
		t.Fatalf("second on accepted: %v", err)
	}
	if err := resolver.OnCompleted(context.Background(), "opp-solo"); err != nil {
		t.Fatalf("on completed with no paused siblings: %v", err)
	}
}

func TestResolverSkipsNonProspectOpportunities(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	if err := store.PutOpportunity(context.Background(), Opportunity{
		ID: "req-1", Kind: KindConnectionRequest, OwnerUserID: "user-1",
		Status: StatusAccepted, CreatedAt: now,
	}); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	resolver := NewResolver(store, store, fixedClock(now))
	if err := resolver.OnAccepted(context.Background(), "req-1"); err != nil {
		t.Fatalf("on accepted for non-connector: %v", err)
	}
}

func TestConcurrentAcceptNeverYieldsTwoAccepted(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedConnector(t, store, "opp-a", "prospect-1", StatusOpen, now)
	seedConnector(t, store, "opp-b", "prospect-1", StatusOpen, now)

	resolver := NewResolver(store, store, fixedClock(now))

	var wg sync.WaitGroup
	for _, id := range []string{"opp-a", "opp-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			// The loser's exclusive accept fails; that is a silent no-op.
			if err := resolver.Accept(context.Background(), id); err != nil && !errors.Is(err, ErrStaleTransition) {
				t.Errorf("accept %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	accepted := 0
	for _, id := range []string{"opp-a", "opp-b"} {
		o, err := store.GetOpportunity(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		switch o.Status {
		case StatusAccepted:
			accepted++
		case StatusPaused, StatusOpen:
			// Loser outcomes permitted by resolution rules.
		default:
			t.Fatalf("unexpected loser status %s for %s", o.Status, id)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted count = %d, want exactly one", accepted)
	}
}

func TestAcceptExclusiveRejectsSecondAccept(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedConnector(t, store, "opp-a", "prospect-1", StatusOpen, now)
	seedConnector(t, store, "opp-b", "prospect-1", StatusOpen, now)

	resolver := NewResolver(store, store, fixedClock(now))
	if err := resolver.Accept(context.Background(), "opp-a"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if err := resolver.Accept(context.Background(), "opp-b"); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected second accept to lose, got %v", err)
	}
}

func TestCompleteCancelsPausedSiblings(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedConnector(t, store, "opp-a", "prospect-1", StatusOpen, now)
	seedConnector(t, store, "opp-b", "prospect-1", StatusOpen, now)

	resolver := NewResolver(store, store, fixedClock(now))
	if err := resolver.Accept(context.Background(), "opp-a"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := resolver.Complete(context.Background(), "opp-a"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	a, _ := store.GetOpportunity(context.Background(), "opp-a")
	b, _ := store.GetOpportunity(context.Background(), "opp-b")
	if a.Status != StatusCompleted {
		t.Fatalf("completed status = %s", a.Status)
	}
	if b.Status != StatusCancelled {
		t.Fatalf("paused sibling status = %s, want cancelled", b.Status)
	}
}

func TestDeclineGuardsCurrentStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedConnector(t, store, "opp-a", "prospect-1", StatusPresented, now)

	resolver := NewResolver(store, store, fixedClock(now))
	if err := resolver.Decline(context.Background(), "opp-a"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if err := resolver.Decline(context.Background(), "opp-a"); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected repeat decline to report stale transition, got %v", err)
	}
}
