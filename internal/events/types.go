package events

// EventType identifies the type of event
type EventType string

const (
	// Request lifecycle
	RequestIssuedEvent    EventType = "request.issued"
	RequestCompletedEvent EventType = "request.completed"
	RequestFailedEvent    EventType = "request.failed"
	RequestAbortedEvent   EventType = "request.aborted"
	RequestDroppedEvent   EventType = "request.dropped"

	// Chain lifecycle
	ChainEndedEvent EventType = "chain.ended"

	// Wildcard subscribes to everything.
	Wildcard EventType = "*"
)

// Mode tells which scheduler a request went through.
type Mode string

const (
	ModeChain Mode = "chain"
	ModeQueue Mode = "queue"
)

// Event represents an event in the system
type Event struct {
	Type    EventType
	Payload interface{}
}

// RequestPayload accompanies every request.* event.
type RequestPayload struct {
	HandleID string
	Mode     Mode
	Method   string
	URL      string
	Queue    string // queue mode only
	Status   int    // completed and failed, when a response arrived
	Err      error  // failed and aborted
}

// ChainPayload accompanies chain.ended.
type ChainPayload struct {
	Name   string
	Length int
}
