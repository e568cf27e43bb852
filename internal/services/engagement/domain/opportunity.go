// Package domain implements the engagement engine: opportunity scoring,
// ranking, presentation lifecycle, sibling conflict resolution, contact
// throttling, and the decision orchestration that ties them together.
package domain

import (
	"strings"
	"time"
)

// Kind identifies one of the relationship-building opportunity varieties.
type Kind string

const (
	// KindConnectorOpportunity is a connector-matched prospect.
	KindConnectorOpportunity Kind = "connector_opportunity"
	// KindConnectionRequest is an inbound request to connect.
	KindConnectionRequest Kind = "connection_request"
	// KindIntroductionOffer is an offered introduction, as connector or introducee.
	KindIntroductionOffer Kind = "introduction_offer"
)

// Valid reports whether the kind is one of the closed set.
func (k Kind) Valid() bool {
	switch k {
	case KindConnectorOpportunity, KindConnectionRequest, KindIntroductionOffer:
		return true
	}
	return false
}

// Status is one stage of the opportunity lifecycle.
type Status string

const (
	// StatusOpen is the initial stage set by upstream producers.
	StatusOpen Status = "open"
	// StatusPresented marks an opportunity surfaced to its owner once.
	StatusPresented Status = "presented"
	// StatusDormant marks an opportunity surfaced twice without a response.
	StatusDormant Status = "dormant"
	// StatusAccepted marks an opportunity the owner agreed to pursue.
	StatusAccepted Status = "accepted"
	// StatusDeclined marks an opportunity the owner turned down.
	StatusDeclined Status = "declined"
	// StatusPaused marks a sibling set aside while another is in flight.
	StatusPaused Status = "paused"
	// StatusCancelled marks an opportunity retired by conflict resolution.
	StatusCancelled Status = "cancelled"
	// StatusCompleted marks a fully concluded opportunity.
	StatusCompleted Status = "completed"
)

// Terminal reports whether the status ends the lifecycle. Dormant counts:
// a twice-ignored opportunity never re-enters the ranking pool.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusCompleted, StatusCancelled, StatusDormant:
		return true
	}
	return false
}

// Presentable reports whether the opportunity may still be surfaced to its owner.
func (s Status) Presentable() bool {
	return s == StatusOpen || s == StatusPresented
}

// ConnectionStrength grades how close a connector is to a prospect.
type ConnectionStrength string

const (
	// StrengthFirst is a first-degree connection.
	StrengthFirst ConnectionStrength = "first"
	// StrengthSecond is a second-degree connection.
	StrengthSecond ConnectionStrength = "second"
	// StrengthThird is a third-degree connection.
	StrengthThird ConnectionStrength = "third"
	// StrengthUnknown is an ungraded connection.
	StrengthUnknown ConnectionStrength = "unknown"
)

// OfferRole identifies which side of an introduction offer the owner holds.
type OfferRole string

const (
	// RoleConnector means the owner would make the introduction.
	RoleConnector OfferRole = "connector"
	// RoleIntroducee means the owner would receive the introduction.
	RoleIntroducee OfferRole = "introducee"
)

// PresentationKind distinguishes how an opportunity reached the user.
type PresentationKind string

const (
	// PresentationDedicated is a proactive, opportunity-specific surface.
	PresentationDedicated PresentationKind = "dedicated"
	// PresentationNatural is an in-conversation mention.
	PresentationNatural PresentationKind = "natural"
)

// Valid reports whether the presentation kind is recognized.
func (k PresentationKind) Valid() bool {
	return k == PresentationDedicated || k == PresentationNatural
}

// Opportunity is one relationship-building record ranked and throttled by
// the engine. Kind-specific fields are a closed union: fields outside a
// kind's column set stay at their zero value and contribute nothing to
// scoring.
type Opportunity struct {
	ID                    string
	Kind                  Kind
	OwnerUserID           string
	CounterpartDescriptor string
	Status                Status
	PresentationCount     int
	LastPresentedAt       *time.Time
	DormantAt             *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time

	// Connector opportunity fields.
	ProspectID         string
	ConnectionStrength ConnectionStrength

	// Shared by connector opportunities and introduction offers.
	BountyCredits int

	// Connection request fields.
	VouchCount   int
	CreditsSpent int

	// Introduction offer fields.
	Role OfferRole
}

// Normalize trims identity fields and applies zero-value defaults.
func (o Opportunity) Normalize() Opportunity {
	o.ID = strings.TrimSpace(o.ID)
	o.OwnerUserID = strings.TrimSpace(o.OwnerUserID)
	o.ProspectID = strings.TrimSpace(o.ProspectID)
	o.CounterpartDescriptor = strings.TrimSpace(o.CounterpartDescriptor)
	if o.Status == "" {
		o.Status = StatusOpen
	}
	if o.Kind == KindConnectorOpportunity && o.ConnectionStrength == "" {
		o.ConnectionStrength = StrengthUnknown
	}
	return o
}
