package domain

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// fakeStore is an in-memory implementation of every engine store contract.
type fakeStore struct {
	mu            sync.Mutex
	opportunities map[string]Opportunity
	attempts      []EngagementAttempt
	rankings      map[string][]PriorityEntry
	followUps     map[string]FollowUp
	messages      []InboundMessage
	facts         []ProfileFact
	audits        []AuditEvent
	triggers      map[string]bool
	exposures     map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		opportunities: make(map[string]Opportunity),
		rankings:      make(map[string][]PriorityEntry),
		followUps:     make(map[string]FollowUp),
		triggers:      make(map[string]bool),
		exposures:     make(map[string]bool),
	}
}

func (s *fakeStore) PutOpportunity(_ context.Context, opportunity Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunities[opportunity.ID] = opportunity.Normalize()
	return nil
}

func (s *fakeStore) GetOpportunity(_ context.Context, id string) (Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.opportunities[id]
	if !ok {
		return Opportunity{}, ErrNotFound
	}
	return o, nil
}

func (s *fakeStore) ListRankable(_ context.Context, ownerUserID string) ([]Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Opportunity
	for _, o := range s.opportunities {
		if o.OwnerUserID == ownerUserID && !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListOutstandingRequests(_ context.Context, ownerUserID string) ([]Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Opportunity
	for _, o := range s.opportunities {
		if o.OwnerUserID == ownerUserID && o.Kind == KindConnectionRequest && o.Status.Presentable() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListConnectorSiblings(_ context.Context, prospectID string, excludeID string, statuses []Status) ([]Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed := make(map[Status]bool, len(statuses))
	for _, status := range statuses {
		allowed[status] = true
	}
	var out []Opportunity
	for _, o := range s.opportunities {
		if o.Kind != KindConnectorOpportunity || o.ProspectID != prospectID || o.ID == excludeID {
			continue
		}
		if len(allowed) > 0 && !allowed[o.Status] {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) TransitionStatus(_ context.Context, id string, expected Status, next Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.opportunities[id]
	if !ok || o.Status != expected {
		return false, nil
	}
	o.Status = next
	o.UpdatedAt = at
	s.opportunities[id] = o
	return true, nil
}

func (s *fakeStore) AcceptExclusive(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.opportunities[id]
	if !ok || !o.Status.Presentable() {
		return false, nil
	}
	if o.ProspectID != "" {
		for _, sibling := range s.opportunities {
			if sibling.ID != id && sibling.ProspectID == o.ProspectID && sibling.Status == StatusAccepted {
				return false, nil
			}
		}
	}
	o.Status = StatusAccepted
	o.UpdatedAt = at
	s.opportunities[id] = o
	return true, nil
}

func (s *fakeStore) ApplyPresentation(_ context.Context, update PresentationUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.opportunities[update.ID]
	if !ok || o.Status != update.ExpectedStatus || o.PresentationCount != update.ExpectedCount {
		return false, nil
	}
	o.Status = update.NewStatus
	o.PresentationCount = update.NewCount
	presentedAt := update.PresentedAt
	o.LastPresentedAt = &presentedAt
	o.DormantAt = update.DormantAt
	o.UpdatedAt = update.PresentedAt
	s.opportunities[update.ID] = o
	return true, nil
}

func (s *fakeStore) AppendAttempt(_ context.Context, attempt EngagementAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *fakeStore) LastSentAttempt(_ context.Context, userID string, since time.Time) (EngagementAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *EngagementAttempt
	for i := range s.attempts {
		a := s.attempts[i]
		if a.UserID != userID || a.Outcome != OutcomeSent || a.CreatedAt.Before(since) {
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			found = &a
		}
	}
	if found == nil {
		return EngagementAttempt{}, ErrNotFound
	}
	return *found, nil
}

func (s *fakeStore) ListSentAttempts(_ context.Context, userID string, since time.Time) ([]EngagementAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []EngagementAttempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.Outcome == OutcomeSent && !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) attemptsByOutcome(outcome AttemptOutcome) []EngagementAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []EngagementAttempt
	for _, a := range s.attempts {
		if a.Outcome == outcome {
			out = append(out, a)
		}
	}
	return out
}

func (s *fakeStore) ReplaceRanking(_ context.Context, userID string, entries []PriorityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rankings[userID] = append([]PriorityEntry(nil), entries...)
	return nil
}

func (s *fakeStore) ListRanking(_ context.Context, userID string) ([]PriorityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PriorityEntry(nil), s.rankings[userID]...), nil
}

func (s *fakeStore) ScheduleFollowUp(_ context.Context, followUp FollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followUps[followUp.ID] = followUp
	return nil
}

func (s *fakeStore) CancelFollowUpsForItem(_ context.Context, itemType Kind, itemID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := 0
	for id, fu := range s.followUps {
		if fu.ItemType == itemType && fu.ItemID == itemID && fu.Status == FollowUpPending {
			fu.Status = FollowUpCancelled
			fu.UpdatedAt = at
			s.followUps[id] = fu
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *fakeStore) DueFollowUps(_ context.Context, now time.Time, limit int) ([]FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []FollowUp
	for _, fu := range s.followUps {
		if fu.Status == FollowUpPending && !fu.DueAt.After(now) {
			out = append(out, fu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) ClaimFollowUp(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fu, ok := s.followUps[id]
	if !ok || fu.Status != FollowUpPending {
		return false, nil
	}
	fu.Status = FollowUpProcessing
	fu.UpdatedAt = at
	s.followUps[id] = fu
	return true, nil
}

func (s *fakeStore) CompleteFollowUp(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fu, ok := s.followUps[id]
	if !ok || fu.Status != FollowUpProcessing {
		return false, nil
	}
	fu.Status = FollowUpDone
	fu.UpdatedAt = at
	s.followUps[id] = fu
	return true, nil
}

func (s *fakeStore) pendingFollowUps(userID string) []FollowUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []FollowUp
	for _, fu := range s.followUps {
		if fu.UserID == userID && fu.Status == FollowUpPending {
			out = append(out, fu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

func (s *fakeStore) RecordInboundMessage(_ context.Context, message InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *fakeStore) HasInboundMessageBetween(_ context.Context, userID string, from time.Time, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.UserID != userID || m.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && m.CreatedAt.After(to) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *fakeStore) ListRecentInboundMessages(_ context.Context, userID string, limit int) ([]InboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []InboundMessage
	for _, m := range s.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) PutProfileFact(_ context.Context, fact ProfileFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, fact)
	return nil
}

func (s *fakeStore) ListProfileFacts(_ context.Context, userID string) ([]ProfileFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ProfileFact
	for _, f := range s.facts {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) AppendAuditEvent(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, event)
	return nil
}

func (s *fakeStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audits))
	for _, e := range s.audits {
		out = append(out, e.Action)
	}
	return out
}

func (s *fakeStore) RegisterTrigger(_ context.Context, userID string, triggerID string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "\x00" + triggerID
	if s.triggers[key] {
		return false, nil
	}
	s.triggers[key] = true
	return true, nil
}

func (s *fakeStore) RegisterExposure(_ context.Context, itemType Kind, itemID string, exposureKey string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.Join([]string{string(itemType), itemID, exposureKey}, "\x00")
	if s.exposures[key] {
		return false, nil
	}
	s.exposures[key] = true
	return true, nil
}
