package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during visualization state operations.
var (
	// ErrNotFound indicates an operation targeted an id that does not
	// exist. Read paths, CollapseContainer/ExpandContainer and
	// NavigateToElement return it; ToggleNodeLabel on an absent id is a
	// no-op and does not.
	ErrNotFound = errors.New("not found")

	// ErrBudgetExceeded indicates that a budget limit has been exceeded.
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// InvariantViolation is returned by VisualizationState CRUD when a mutation
// would leave I1-I4 unsatisfied. Validation stops at the first failed
// invariant, so the violation it returns carries exactly one entry; the
// state is never left partially mutated when this error is returned.
type InvariantViolation struct {
	// Entity names the object that was being mutated (node/edge/container id).
	Entity string

	// Violations lists every invariant that failed, e.g. "I2: edge target
	// does not resolve to any node or container".
	Violations []string
}

// Error implements the error interface for InvariantViolation.
func (e *InvariantViolation) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("invariant violation for %s: %s", e.Entity, e.Violations[0])
	}
	return fmt.Sprintf("invariant violations for %s: %v", e.Entity, e.Violations)
}

// Add appends a violation message.
func (e *InvariantViolation) Add(msg string) { e.Violations = append(e.Violations, msg) }

// HasViolations returns true if there are any recorded violations.
func (e *InvariantViolation) HasViolations() bool { return len(e.Violations) > 0 }

// NewInvariantViolation creates a new InvariantViolation for the given entity.
func NewInvariantViolation(entity string) *InvariantViolation {
	return &InvariantViolation{
		Entity:     entity,
		Violations: make([]string, 0),
	}
}

// NotFoundError reports an operation against a missing id.
type NotFoundError struct {
	// Kind is the entity kind that was looked up.
	Kind EntityKind
	// ID is the id that could not be resolved.
	ID string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, ErrNotFound)
}

// Unwrap returns ErrNotFound, supporting errors.Is.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a new NotFoundError for the given kind and id.
func NewNotFoundError(kind EntityKind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// AggregationInconsistencyError is returned by
// VisualizationState.ValidateAggregationConsistency when the maintained
// originalToAggregated/aggregatedToOriginal indexes diverge from a
// from-scratch recomputation.
type AggregationInconsistencyError struct {
	Divergences []string
}

// Error implements the error interface for AggregationInconsistencyError.
func (e *AggregationInconsistencyError) Error() string {
	return fmt.Sprintf("aggregation consistency check failed: %v", e.Divergences)
}

// NewAggregationInconsistencyError creates a new AggregationInconsistencyError.
func NewAggregationInconsistencyError(divergences []string) *AggregationInconsistencyError {
	return &AggregationInconsistencyError{Divergences: divergences}
}

// IngestionRejectError is returned when the ingestion collaborator detects
// forbidden mutable UI-state fields (collapsed, hidden, styling) in an
// incoming payload.
type IngestionRejectError struct {
	// Field is the forbidden field path that was present in the payload.
	Field string
	// Reason explains why the field is rejected.
	Reason string
}

// Error implements the error interface for IngestionRejectError.
func (e *IngestionRejectError) Error() string {
	return fmt.Sprintf("ingestion rejected: field %q: %s", e.Field, e.Reason)
}

// NewIngestionRejectError creates a new IngestionRejectError.
func NewIngestionRejectError(field, reason string) *IngestionRejectError {
	return &IngestionRejectError{Field: field, Reason: reason}
}

// BudgetExceededError represents an error that occurred when the
// smart-collapse screen-area budget was exceeded.
// It provides detailed information about which budget was violated and by
// how much.
type BudgetExceededError struct {
	// LimitType indicates which budget dimension was exceeded (currently
	// always "area").
	LimitType string

	// Limit is the configured budget limit that was exceeded.
	Limit int

	// Used is the actual amount that was attempted to be used.
	Used int

	// UnitID identifies what was being budgeted when the limit was exceeded
	// (the area budget manager passes "smart_collapse").
	UnitID string
}

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s limit=%d, used=%d, unit=%s",
		e.LimitType, e.Limit, e.Used, e.UnitID)
}

// Is implements error comparison for Go 1.13+ error handling.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// NewBudgetExceededError creates a new BudgetExceededError with the given details.
func NewBudgetExceededError(limitType string, limit, used int, unitID string) *BudgetExceededError {
	return &BudgetExceededError{
		LimitType: limitType,
		Limit:     limit,
		Used:      used,
		UnitID:    unitID,
	}
}
