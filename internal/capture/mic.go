package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const micFrameSamples = 320 // 20ms at 16kHz

// MicSource reads PCM16 mono frames from the default input device through
// PortAudio. At most one stream is held at a time; Start while already
// started is an error so ownership hand-offs stay explicit.
type MicSource struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

func NewMicSource() *MicSource { return &MicSource{} }

func (m *MicSource) Start(sampleRate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return fmt.Errorf("mic already started")
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	m.buf = make([]int16, micFrameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(m.buf), m.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}
	m.stream = stream
	return nil
}

func (m *MicSource) ReadFrame() ([]int16, error) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return nil, fmt.Errorf("mic not started")
	}
	if err := stream.Read(); err != nil {
		return nil, err
	}
	out := make([]int16, len(m.buf))
	copy(out, m.buf)
	return out, nil
}

func (m *MicSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	err := m.stream.Stop()
	if cerr := m.stream.Close(); err == nil {
		err = cerr
	}
	m.stream = nil
	_ = portaudio.Terminate()
	return err
}
