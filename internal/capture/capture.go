// Package capture owns the microphone for the duration of one recording
// attempt and hands back the assembled audio payload when it stops.
package capture

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nonotalk/voice-client/internal/observability"
)

var (
	// ErrPermissionDenied means microphone access was refused.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	// ErrDevice means no compatible recording device or mode exists.
	ErrDevice = errors.New("capture: no usable recording device")
)

// State is the recorder lifecycle of one session.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateStopped
)

// StopCause labels why a session ended.
type StopCause string

const (
	StopManual  StopCause = "manual"
	StopSilence StopCause = "silence"
	StopTimeout StopCause = "timeout"
)

// Source abstracts the live audio input. Implementations own the underlying
// hardware stream exclusively between Start and Stop.
type Source interface {
	Start(sampleRate int) error
	// ReadFrame blocks until the next PCM16 frame is available and returns it.
	ReadFrame() ([]int16, error)
	Stop() error
}

// Payload is the assembled audio of a finished session.
type Payload struct {
	Bytes []byte
	MIME  string
}

// Recorder creates capture sessions over a single Source.
type Recorder struct {
	src        Source
	sampleRate int
	maxDur     time.Duration
	enc        Encoder
	log        zerolog.Logger
}

// NewRecorder negotiates the best-supported encoding up front and returns a
// recorder bound to src. maxDur is the hard safety stop (30s in production).
func NewRecorder(src Source, sampleRate int, maxDur time.Duration) *Recorder {
	return &Recorder{
		src:        src,
		sampleRate: sampleRate,
		maxDur:     maxDur,
		enc:        negotiate(preferredEncodings),
		log:        observability.Component("capture"),
	}
}

// Session is one recording attempt, start to stop. Chunks are append-only;
// the source is released on stop regardless of the stop cause.
type Session struct {
	ID        string
	StartedAt time.Time

	rec *Recorder

	mu     sync.Mutex
	state  State
	chunks [][]int16
	level  float64 // smoothed energy, 0-255
	cause  StopCause
	result Payload

	stopTimer *time.Timer
	readDone  chan struct{}
	done      chan struct{}
}

// Start acquires the source and begins recording. It fails with
// ErrPermissionDenied or ErrDevice depending on why the source refused.
func (r *Recorder) Start() (*Session, error) {
	if err := r.src.Start(r.sampleRate); err != nil {
		return nil, classifySourceError(err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		rec:       r,
		state:     StateRecording,
		readDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.stopTimer = time.AfterFunc(r.maxDur, func() {
		// fatal-safe, not an error: the race against manual/silence stop is
		// resolved inside Stop by checking the recorder state
		if _, err := s.Stop(StopTimeout); err != nil {
			r.log.Warn().Err(err).Str("session", s.ID).Msg("timeout stop failed")
		}
	})
	go s.readLoop()

	observability.CapturesStarted.Inc()
	r.log.Debug().Str("session", s.ID).Str("mime", r.enc.MIME()).Msg("recording started")
	return s, nil
}

func (s *Session) readLoop() {
	defer close(s.readDone)
	for {
		frame, err := s.rec.src.ReadFrame()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.state != StateRecording {
			s.mu.Unlock()
			return
		}
		s.chunks = append(s.chunks, frame)
		s.level = s.level*0.7 + frameLevel(frame)*0.3
		s.mu.Unlock()
	}
}

// State reports the current recorder state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Level is the smoothed input energy on a 0-255 scale, for silence detection.
func (s *Session) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Cause reports why the session stopped; empty while still recording.
func (s *Session) Cause() StopCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Done is closed once the session has fully stopped and its payload is
// available through Result.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the encoded payload. Valid only after Done is closed.
func (s *Session) Result() Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Stop forces completion and returns the assembled payload. Competing stop
// causes (manual, silence, timeout) race; whichever lands first wins and the
// rest observe the already-stopped session and get the same payload back.
func (s *Session) Stop(cause StopCause) (Payload, error) {
	s.mu.Lock()
	if s.state == StateStopped {
		p := s.result
		s.mu.Unlock()
		return p, nil
	}
	s.state = StateStopped
	s.cause = cause
	chunks := s.chunks
	s.mu.Unlock()
	// done must not close before the result is stored
	defer close(s.done)

	s.stopTimer.Stop()
	if err := s.rec.src.Stop(); err != nil {
		s.rec.log.Warn().Err(err).Str("session", s.ID).Msg("source stop failed")
	}
	<-s.readDone

	bytes, err := s.rec.enc.Encode(s.rec.sampleRate, chunks)
	if err != nil {
		return Payload{}, fmt.Errorf("capture: encode: %w", err)
	}
	p := Payload{Bytes: bytes, MIME: s.rec.enc.MIME()}

	s.mu.Lock()
	s.result = p
	s.mu.Unlock()

	observability.CaptureStops.WithLabelValues(string(cause)).Inc()
	s.rec.log.Info().
		Str("session", s.ID).
		Str("cause", string(cause)).
		Int("bytes", len(p.Bytes)).
		Dur("duration", time.Since(s.StartedAt)).
		Msg("recording stopped")
	return p, nil
}

// frameLevel maps a PCM16 frame's RMS onto the 0-255 scale the silence
// detector thresholds against.
func frameLevel(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	lvl := rms / 128.0
	if lvl > 255 {
		lvl = 255
	}
	return lvl
}

func classifySourceError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDevice, err)
}
