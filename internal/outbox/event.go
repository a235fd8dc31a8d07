package outbox

// Booking lifecycle event types. The Kafka topic name equals the event type.
const (
	EventAppointmentCreated   = "booking.appointment.created.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentExpired   = "booking.appointment.expired.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is an outbox row awaiting publication.
type Record struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
}
