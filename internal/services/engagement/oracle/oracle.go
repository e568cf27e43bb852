// Package oracle provides clients for the external decision oracle that
// weighs an engagement context bundle and answers message-or-wait.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
)

// Config configures the decision endpoint and HTTP behavior.
type Config struct {
	// DecisionsURL is the oracle's decision endpoint.
	DecisionsURL string
	// Model selects the oracle model variant; sent with every request.
	Model string
	// APIKey is sent as a bearer token. Never logged or echoed in errors.
	APIKey     string
	HTTPClient *http.Client
}

// Client calls a remote decision oracle over HTTP.
type Client struct {
	cfg Config
}

// NewClient builds an oracle client.
func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Client{cfg: cfg}
}

type decisionRequest struct {
	Model   string          `json:"model,omitempty"`
	Context decisionContext `json:"context"`
}

type decisionContext struct {
	UserID              string               `json:"user_id"`
	RankedItems         []decisionRankedItem `json:"ranked_items"`
	OutstandingRequests []decisionRequestRef `json:"outstanding_requests,omitempty"`
	RecentMessages      []decisionMessage    `json:"recent_messages,omitempty"`
	ProfileFacts        map[string]string    `json:"profile_facts,omitempty"`
	Reengagement        map[string]string    `json:"reengagement,omitempty"`
}

type decisionRankedItem struct {
	Rank     int    `json:"rank"`
	ItemType string `json:"item_type"`
	ItemID   string `json:"item_id"`
	Score    int    `json:"score"`
	Status   string `json:"status"`
}

type decisionRequestRef struct {
	ItemID                string `json:"item_id"`
	CounterpartDescriptor string `json:"counterpart_descriptor,omitempty"`
	VouchCount            int    `json:"vouch_count"`
	CreditsSpent          int    `json:"credits_spent"`
	CreatedAt             string `json:"created_at"`
}

type decisionMessage struct {
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

func encodeContext(bundle domain.OracleContext) decisionContext {
	out := decisionContext{
		UserID:       bundle.UserID,
		Reengagement: bundle.Reengagement,
	}
	for _, entry := range bundle.RankedItems {
		out.RankedItems = append(out.RankedItems, decisionRankedItem{
			Rank:     entry.Rank,
			ItemType: string(entry.ItemType),
			ItemID:   entry.ItemID,
			Score:    entry.ValueScore,
			Status:   string(entry.Status),
		})
	}
	for _, request := range bundle.OutstandingRequests {
		out.OutstandingRequests = append(out.OutstandingRequests, decisionRequestRef{
			ItemID:                request.ID,
			CounterpartDescriptor: request.CounterpartDescriptor,
			VouchCount:            request.VouchCount,
			CreditsSpent:          request.CreditsSpent,
			CreatedAt:             request.CreatedAt.Format(time.RFC3339),
		})
	}
	for _, message := range bundle.RecentMessages {
		out.RecentMessages = append(out.RecentMessages, decisionMessage{
			Body:      message.Body,
			CreatedAt: message.CreatedAt.Format(time.RFC3339),
		})
	}
	if len(bundle.ProfileFacts) > 0 {
		out.ProfileFacts = make(map[string]string, len(bundle.ProfileFacts))
		for _, fact := range bundle.ProfileFacts {
			out.ProfileFacts[fact.Key] = fact.Value
		}
	}
	return out
}

type decisionResponse struct {
	ShouldMessage bool   `json:"should_message"`
	Reasoning     string `json:"reasoning"`
	ExtendDays    int    `json:"extend_days"`
	Threads       []struct {
		ItemType string `json:"item_type"`
		ItemID   string `json:"item_id"`
		Priority int    `json:"priority"`
		Guidance string `json:"guidance"`
	} `json:"threads"`
}

// Decide posts the context bundle and decodes the oracle's verdict. The
// reasoning field is carried opaquely for audit; callers never parse it.
func (c *Client) Decide(ctx context.Context, bundle domain.OracleContext) (domain.OracleOutcome, error) {
	decisionsURL := strings.TrimSpace(c.cfg.DecisionsURL)
	apiKey := strings.TrimSpace(c.cfg.APIKey)
	if decisionsURL == "" {
		return domain.OracleOutcome{}, fmt.Errorf("decisions url is required")
	}
	if apiKey == "" {
		return domain.OracleOutcome{}, fmt.Errorf("api key is required")
	}

	requestBody, err := json.Marshal(decisionRequest{
		Model:   strings.TrimSpace(c.cfg.Model),
		Context: encodeContext(bundle),
	})
	if err != nil {
		return domain.OracleOutcome{}, fmt.Errorf("marshal decision request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, decisionsURL, bytes.NewReader(requestBody))
	if err != nil {
		return domain.OracleOutcome{}, fmt.Errorf("build decision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return domain.OracleOutcome{}, fmt.Errorf("decision request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return domain.OracleOutcome{}, fmt.Errorf("read decision error body: %w", err)
		}
		return domain.OracleOutcome{}, fmt.Errorf("decision request status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload decisionResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return domain.OracleOutcome{}, fmt.Errorf("decode decision response: %w", err)
	}

	outcome := domain.OracleOutcome{
		ShouldMessage: payload.ShouldMessage,
		Reasoning:     payload.Reasoning,
		ExtendDays:    payload.ExtendDays,
	}
	for _, thread := range payload.Threads {
		outcome.Threads = append(outcome.Threads, domain.OracleThread{
			ItemType: domain.Kind(strings.TrimSpace(thread.ItemType)),
			ItemID:   strings.TrimSpace(thread.ItemID),
			Priority: thread.Priority,
			Guidance: thread.Guidance,
		})
	}
	return outcome, nil
}
