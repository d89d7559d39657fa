package models

// Группы статусов для фильтра списка накладных.
const (
	StatusGroupDelivered      = "delivered"
	StatusGroupRTO            = "rto"
	StatusGroupPending        = "pending-group"
	StatusGroupInTransit      = "in transit"
	StatusGroupOutForDelivery = "out for delivery"
	StatusGroupAttempted      = "attempted"
	StatusGroupHeld           = "held"
)

var StatusGroups = []string{
	StatusGroupDelivered,
	StatusGroupRTO,
	StatusGroupPending,
	StatusGroupInTransit,
	StatusGroupOutForDelivery,
	StatusGroupAttempted,
	StatusGroupHeld,
}

// ConsignmentFilter: условия выборки списка накладных одного клиента.
// From/To: границы booked_on (YYYY-MM-DD, включительно). Limit <= 0 означает без ограничения.
type ConsignmentFilter struct {
	ClientID    int64
	Search      string
	StatusGroup string
	From        string
	To          string
	Limit       int
	Offset      int
}
