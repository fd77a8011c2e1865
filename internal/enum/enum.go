package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "Pending"
	OrderStatusStarted   = "Started"
	OrderStatusReady     = "Ready"
	OrderStatusCollected = "Collected"
	OrderStatusCancelled = "Cancelled"
)

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusStarted,
	OrderStatusReady,
	OrderStatusCollected,
	OrderStatusCancelled,
}

// ── Roles (CHECK constrained in DB) ──

const (
	UserRoleStudent = "student"
	UserRoleStaff   = "staff"
)

// ── Defaults ──

const DefaultPreference = "No preference"

// ── Event types pushed to websocket clients and the message broker ──

const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
)
