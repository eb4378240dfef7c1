package agent

import (
	"context"

	"github.com/nonotalk/voice-client/internal/capture"
	"github.com/nonotalk/voice-client/internal/chat"
)

// Recorder starts one capture session at a time.
type Recorder interface {
	Start() (*capture.Session, error)
}

// Transcriber turns a finished capture payload into text. Implementations
// fail soft: on any error they return the empty string.
type Transcriber interface {
	Transcribe(ctx context.Context, p capture.Payload) string
}

// Sender delivers one user message and speaks the reply as it arrives.
type Sender interface {
	Send(ctx context.Context, conversationID, message string, emotion *string) error
}

// History reads back the locally cached tail of a conversation.
type History interface {
	Recent(conversationID string) ([]chat.Message, error)
}

// Player is the slice of the audio output the agent controls directly.
type Player interface {
	Busy() bool
	Stop()
}
