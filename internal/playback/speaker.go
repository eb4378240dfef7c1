package playback

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const speakerFrameSamples = 960 // 20ms at 48kHz

// SpeakerSink plays PCM16 mono audio on the default output device. Writes
// block at the device's pace, which keeps playback naturally throttled.
type SpeakerSink struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	pending []int16
	gen     int // bumped on Reset so a stale write drops its remainder
}

// NewSpeakerSink opens the default output stream.
func NewSpeakerSink(sampleRate int) (*SpeakerSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	s := &SpeakerSink{buf: make([]int16, speakerFrameSamples)}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(s.buf), s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	s.stream = stream
	return s, nil
}

func (s *SpeakerSink) WritePCM(pcm []byte) error {
	s.mu.Lock()
	gen := s.gen
	for i := 0; i+1 < len(pcm); i += 2 {
		s.pending = append(s.pending, int16(uint16(pcm[i])|uint16(pcm[i+1])<<8))
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.gen != gen || s.stream == nil || len(s.pending) < len(s.buf) {
			s.mu.Unlock()
			return nil
		}
		copy(s.buf, s.pending[:len(s.buf)])
		s.pending = s.pending[len(s.buf):]
		stream := s.stream
		s.mu.Unlock()

		if err := stream.Write(); err != nil {
			return err
		}
	}
}

// Reset drops any queued samples immediately.
func (s *SpeakerSink) Reset() {
	s.mu.Lock()
	s.pending = s.pending[:0]
	s.gen++
	s.mu.Unlock()
}

func (s *SpeakerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	err := s.stream.Stop()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	s.stream = nil
	_ = portaudio.Terminate()
	return err
}
