package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollBatch    = 20
)

type checkRunner interface {
	RunCheck(ctx context.Context, userID string, triggerID string) (domain.CheckResult, error)
}

// LoopConfig controls follow-up polling behavior.
type LoopConfig struct {
	PollInterval time.Duration
	PollBatch    int
}

func (c LoopConfig) normalized() LoopConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollBatch <= 0 {
		c.PollBatch = defaultPollBatch
	}
	return c
}

// Loop polls due follow-ups and runs one engagement check per claim. Claims
// are conditional flips, so concurrent loop instances never double-run a
// follow-up.
type Loop struct {
	runner    checkRunner
	followUps domain.FollowUpStore
	clock     func() time.Time
	cfg       LoopConfig
	logf      func(format string, args ...any)
}

// NewLoop constructs a follow-up polling loop.
func NewLoop(runner checkRunner, followUps domain.FollowUpStore, clock func() time.Time, cfg LoopConfig, logf func(format string, args ...any)) *Loop {
	if clock == nil {
		clock = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Loop{
		runner:    runner,
		followUps: followUps,
		clock:     clock,
		cfg:       cfg.normalized(),
		logf:      logf,
	}
}

// Run polls until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.runner == nil || l.followUps == nil {
		return fmt.Errorf("loop is not configured")
	}
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.ProcessDue(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.logf("engagement loop: process due follow-ups: %v", err)
			}
		}
	}
}

// ProcessDue claims and runs every currently due follow-up once.
func (l *Loop) ProcessDue(ctx context.Context) error {
	if l == nil || l.runner == nil || l.followUps == nil {
		return fmt.Errorf("loop is not configured")
	}
	now := l.clock().UTC()
	due, err := l.followUps.DueFollowUps(ctx, now, l.cfg.PollBatch)
	if err != nil {
		return fmt.Errorf("list due follow-ups: %w", err)
	}
	for _, followUp := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := l.followUps.ClaimFollowUp(ctx, followUp.ID, now)
		if err != nil {
			l.logf("engagement loop: claim follow-up %s: %v", followUp.ID, err)
			continue
		}
		if !claimed {
			// Another instance won the claim.
			continue
		}

		result, err := l.runner.RunCheck(ctx, followUp.UserID, "followup:"+followUp.ID)
		if err != nil {
			l.logf("engagement loop: check for user %s: %v", followUp.UserID, err)
		} else {
			l.logf("engagement loop: check for user %s: %s", followUp.UserID, result.Outcome)
		}

		if _, err := l.followUps.CompleteFollowUp(ctx, followUp.ID, l.clock().UTC()); err != nil {
			l.logf("engagement loop: complete follow-up %s: %v", followUp.ID, err)
		}
	}
	return nil
}
