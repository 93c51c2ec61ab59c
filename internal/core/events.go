package core

import "time"

// Payload is a serialized event ready for transport delivery.
type Payload []byte

type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventThought               EventType = "thought"
	EventPrompt                EventType = "prompt"
	EventGenerationStatus      EventType = "video_generation"
	EventError                 EventType = "error"
	EventFrame                 EventType = "frame"
	EventWaitingFrame          EventType = "waiting_frame"
	EventStatusResponse        EventType = "status_response"
)

// Event is the subscriber wire schema: {type, data|content, timestamp}.
// Narrative events (thought, prompt) carry Content; the rest carry Data.
type Event struct {
	Type      EventType      `json:"type"`
	Content   string         `json:"content,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewEvent(t EventType, data map[string]any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

func NewContentEvent(t EventType, content string) Event {
	return Event{Type: t, Content: content, Timestamp: time.Now()}
}

// Recordable reports whether the event belongs in broadcast history.
// Frame traffic is deliberately excluded: history exists to give late
// joiners context, not to replay media.
func (e Event) Recordable() bool {
	switch e.Type {
	case EventThought, EventPrompt, EventGenerationStatus, EventError:
		return true
	}
	return false
}
