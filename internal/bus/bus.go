// Package bus carries the two cross-component signals of the voice pipeline:
// a transcript becoming available and the speaker going quiet. It replaces
// ambient global listeners with channels injected at construction time.
package bus

import "time"

// Transcription is published once per completed capture+transcribe cycle.
type Transcription struct {
	Transcript string
	At         time.Time
}

// Bus fans the pipeline signals between the capture side and the reply side.
// Channels are buffered; publishing never blocks the producer. If a consumer
// lags, the newest signal wins and older ones are dropped.
type Bus struct {
	transcriptions chan Transcription
	speechEnded    chan time.Time
}

func New() *Bus {
	return &Bus{
		transcriptions: make(chan Transcription, 8),
		speechEnded:    make(chan time.Time, 8),
	}
}

// PublishTranscription delivers a transcript signal without blocking.
func (b *Bus) PublishTranscription(t Transcription) {
	select {
	case b.transcriptions <- t:
	default:
		// drop oldest, keep newest
		select {
		case <-b.transcriptions:
		default:
		}
		select {
		case b.transcriptions <- t:
		default:
		}
	}
}

// PublishSpeechEnded records the moment the silence detector decided the
// speaker stopped. Most recent timestamp wins.
func (b *Bus) PublishSpeechEnded(at time.Time) {
	select {
	case b.speechEnded <- at:
	default:
		select {
		case <-b.speechEnded:
		default:
		}
		select {
		case b.speechEnded <- at:
		default:
		}
	}
}

// Transcriptions returns the receive side of the transcript signal.
func (b *Bus) Transcriptions() <-chan Transcription { return b.transcriptions }

// SpeechEnded returns the receive side of the end-of-speech signal.
func (b *Bus) SpeechEnded() <-chan time.Time { return b.speechEnded }
