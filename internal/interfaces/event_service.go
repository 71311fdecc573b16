package interfaces

// EventType represents different event types in the system
type EventType string

const (
	EventAnnotationStarted EventType = "annotation_started"
	EventAnnotationReady   EventType = "annotation_ready"
	EventAnswerReady       EventType = "answer_ready"
	EventSessionReset      EventType = "session_reset"
	EventAnalysisFailed    EventType = "analysis_failed"
)

// Event represents a session event pushed to connected clients
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// EventPublisher delivers session events. Publish never blocks on slow
// subscribers.
type EventPublisher interface {
	Publish(event Event)
}
