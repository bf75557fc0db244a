package models

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"

	// OrderStatusFailed is terminal and only reachable from pending when
	// stock could not be committed. Administrators cannot set it.
	OrderStatusFailed = "failed"
)

// OrderStatuses is the lifecycle in transition order.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// IsKnownOrderStatus reports whether s is part of the administrative lifecycle.
func IsKnownOrderStatus(s string) bool {
	return statusIndex(s) >= 0
}

// NextOrderStatus returns the single status reachable from s, or "" when s is
// terminal or unknown.
func NextOrderStatus(s string) string {
	i := statusIndex(s)
	if i < 0 || i == len(OrderStatuses)-1 {
		return ""
	}
	return OrderStatuses[i+1]
}

// CanTransition reports whether from → to is a single forward step.
func CanTransition(from, to string) bool {
	next := NextOrderStatus(from)
	return next != "" && next == to
}

func statusIndex(s string) int {
	for i, v := range OrderStatuses {
		if v == s {
			return i
		}
	}
	return -1
}
