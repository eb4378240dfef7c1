package chat

import "time"

// Message is the persisted record of one chat turn side. Immutable once the
// server confirms it.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	IsUser         bool      `json:"is_user"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// SendResult is the non-streaming send response.
type SendResult struct {
	UserMessage      *Message `json:"user_message"`
	AIMessage        *Message `json:"ai_message"`
	QuotaRemaining   int      `json:"quota_remaining"`
	CrisisDetected   bool     `json:"crisis_detected"`
	EmergencyMessage string   `json:"emergency_message"`
}

// streamEvent is one parsed frame of the streamed reply. Type discriminates
// the payload shape; anything else is dropped at the parse boundary.
type streamEvent struct {
	Type string `json:"type"`

	// delta
	Content string `json:"content"`

	// done
	UserMessage    *Message `json:"user_message"`
	AIMessage      *Message `json:"ai_message"`
	QuotaRemaining *int     `json:"quota_remaining"`
}

// Speaker receives completed speakable units in arrival order.
type Speaker interface {
	Speak(text string)
}

// Store is the external conversation store the coordinator finalizes into.
type Store interface {
	Append(conversationID string, msgs ...Message) error
}
