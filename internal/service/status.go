package service

import (
	"fmt"

	"github.com/smartcanteen/api/internal/enum"
)

// TransitionPolicy decides which status changes UpdateStatus accepts.
type TransitionPolicy string

const (
	// PolicyStrict only allows the edges in allowedTransitions.
	PolicyStrict TransitionPolicy = "strict"
	// PolicyPermissive accepts any valid status from any other status.
	PolicyPermissive TransitionPolicy = "permissive"
)

// ParseTransitionPolicy maps a config value to a policy. Empty means strict.
func ParseTransitionPolicy(s string) (TransitionPolicy, error) {
	switch TransitionPolicy(s) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyPermissive:
		return PolicyPermissive, nil
	}
	return "", fmt.Errorf("unknown order status policy %q", s)
}

// allowedTransitions defines valid status transitions.
// Key is current status, value is the set of statuses it can transition to.
// Pending may go straight to Ready for items that need no cooking.
// Collected and Cancelled are terminal.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending: {enum.OrderStatusStarted, enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusStarted: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:   {enum.OrderStatusCollected},
}

// IsValidStatus checks if s is one of the order statuses.
func IsValidStatus(s string) bool {
	for _, status := range enum.OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// CanTransition reports whether policy allows moving from current to next.
// Re-applying the current status is always allowed.
func CanTransition(policy TransitionPolicy, current, next string) bool {
	if current == next || policy == PolicyPermissive {
		return true
	}
	for _, s := range allowedTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

func validateStatusTransition(policy TransitionPolicy, current, next string) error {
	if !CanTransition(policy, current, next) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, current, next)
	}
	return nil
}
