package domain

import "errors"

var (
	// ErrNotFound indicates a referenced opportunity or record is absent.
	ErrNotFound = errors.New("record not found")
	// ErrStoreNotConfigured indicates missing persistence wiring.
	ErrStoreNotConfigured = errors.New("store is not configured")
	// ErrOpportunityIDRequired indicates an opportunity id is required.
	ErrOpportunityIDRequired = errors.New("opportunity id is required")
	// ErrUserIDRequired indicates a user id is required.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrTriggerIDRequired indicates a trigger id is required.
	ErrTriggerIDRequired = errors.New("trigger id is required")
	// ErrInvalidKind indicates an unrecognized opportunity kind.
	ErrInvalidKind = errors.New("opportunity kind is invalid")
	// ErrInvalidPresentationKind indicates an unrecognized presentation kind.
	ErrInvalidPresentationKind = errors.New("presentation kind is invalid")
	// ErrNotPresentable indicates the opportunity is terminal or dormant and
	// must not be surfaced again.
	ErrNotPresentable = errors.New("opportunity is not presentable")
	// ErrStaleTransition indicates a status precondition failed because a
	// concurrent actor already handled the row. Callers log and move on.
	ErrStaleTransition = errors.New("status transition precondition failed")
	// ErrOracleNotConfigured indicates decision oracle wiring is missing.
	ErrOracleNotConfigured = errors.New("decision oracle is not configured")
)
