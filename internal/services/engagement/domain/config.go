package domain

import "time"

// Config holds the pacing and ranking tunables of the engine.
type Config struct {
	// MinInterval is the minimum gap between proactive contacts per user.
	MinInterval time.Duration
	// StrikeWindow bounds how far back unanswered contacts are counted.
	StrikeWindow time.Duration
	// StrikeCap is the unanswered streak that fully pauses proactive contact.
	StrikeCap int
	// ResponseWindow bounds how long after a contact an inbound message
	// still counts as an answer. Zero means unconstrained: any later
	// message resets the streak.
	ResponseWindow time.Duration
	// DormancyThreshold is the presentation count at which an unanswered
	// opportunity goes dormant.
	DormancyThreshold int
	// RankingSize caps the priority projection per user.
	RankingSize int
	// DeclineExtension is the default recheck delay when the oracle
	// declines to message and supplies no extension.
	DeclineExtension time.Duration
	// UnavailableRetry is the recheck delay after an oracle or ranking
	// failure. Failures never fail open to a send.
	UnavailableRetry time.Duration
	// RecentMessageLimit caps the conversation window in the oracle bundle.
	RecentMessageLimit int
}

// DefaultConfig returns the production pacing defaults.
func DefaultConfig() Config {
	return Config{
		MinInterval:        7 * 24 * time.Hour,
		StrikeWindow:       90 * 24 * time.Hour,
		StrikeCap:          3,
		ResponseWindow:     0,
		DormancyThreshold:  2,
		RankingSize:        10,
		DeclineExtension:   30 * 24 * time.Hour,
		UnavailableRetry:   24 * time.Hour,
		RecentMessageLimit: 20,
	}
}

func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if c.MinInterval <= 0 {
		c.MinInterval = defaults.MinInterval
	}
	if c.StrikeWindow <= 0 {
		c.StrikeWindow = defaults.StrikeWindow
	}
	if c.StrikeCap <= 0 {
		c.StrikeCap = defaults.StrikeCap
	}
	if c.ResponseWindow < 0 {
		c.ResponseWindow = 0
	}
	if c.DormancyThreshold <= 0 {
		c.DormancyThreshold = defaults.DormancyThreshold
	}
	if c.RankingSize <= 0 {
		c.RankingSize = defaults.RankingSize
	}
	if c.DeclineExtension <= 0 {
		c.DeclineExtension = defaults.DeclineExtension
	}
	if c.UnavailableRetry <= 0 {
		c.UnavailableRetry = defaults.UnavailableRetry
	}
	if c.RecentMessageLimit <= 0 {
		c.RecentMessageLimit = defaults.RecentMessageLimit
	}
	return c
}
