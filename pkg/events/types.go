package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event being published
type EventType string

const (
	// Payment lifecycle events
	EventPaymentRequired EventType = "payment.required"
	EventPaymentSettled  EventType = "payment.settled"
	EventPaymentFailed   EventType = "payment.failed"
	EventPaymentExpired  EventType = "payment.expired"

	// Delegated allowance events
	EventAllowanceRegistered EventType = "allowance.registered"
	EventAllowanceCharged    EventType = "allowance.charged"
	EventAllowanceLowBalance EventType = "allowance.low_balance"
	EventAllowanceRevoked    EventType = "allowance.revoked"
)

// AllTypes lists every event type the engine publishes.
func AllTypes() []EventType {
	return []EventType{
		EventPaymentRequired,
		EventPaymentSettled,
		EventPaymentFailed,
		EventPaymentExpired,
		EventAllowanceRegistered,
		EventAllowanceCharged,
		EventAllowanceLowBalance,
		EventAllowanceRevoked,
	}
}

// Event represents a single event in the system
type Event struct {
	// ID is a unique identifier for this event (for idempotency)
	ID string

	// Type classifies the event
	Type EventType

	// Subject is the primary record the event is about (session key,
	// payment id, or user:address pair)
	Subject string

	// Data carries event-specific payload fields
	Data map[string]interface{}

	// Timestamp is when the event was created
	Timestamp time.Time
}

// NewEvent creates an event with a fresh id and timestamp
func NewEvent(eventType EventType, subject string, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
	}
}
