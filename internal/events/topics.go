package events

// Topic constants for domain events emitted by the platform.
const (
	TopicBudgetCreated        = "budget.created"
	TopicBudgetStatusChanged  = "budget.status_changed"
	TopicReservationConfirmed = "reservation.confirmed"
	TopicReservationCancelled = "reservation.cancelled"
	TopicStockMoved           = "stock.moved"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicBudgetCreated,
		TopicBudgetStatusChanged,
		TopicReservationConfirmed,
		TopicReservationCancelled,
		TopicStockMoved,
	}
}
