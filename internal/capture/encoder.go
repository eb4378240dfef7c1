package capture

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// preferredEncodings mirrors the container preference order of the web
// client. Entries without a registered encoder (the browser-only containers)
// are skipped during negotiation.
var preferredEncodings = []string{
	"audio/wav",
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
}

// Encoder assembles recorded PCM chunks into one payload body.
type Encoder interface {
	MIME() string
	Encode(sampleRate int, chunks [][]int16) ([]byte, error)
}

var encoders = map[string]Encoder{
	"audio/wav": wavEncoder{},
}

// negotiate picks the first preference with a registered encoder, falling
// back to the platform default (raw PCM) when none match.
func negotiate(prefs []string) Encoder {
	for _, mime := range prefs {
		if enc, ok := encoders[mime]; ok {
			return enc
		}
	}
	return pcmEncoder{}
}

type wavEncoder struct{}

func (wavEncoder) MIME() string { return "audio/wav" }

func (wavEncoder) Encode(sampleRate int, chunks [][]int16) ([]byte, error) {
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)

	var n int
	for _, c := range chunks {
		n += len(c)
	}
	data := make([]int, 0, n)
	for _, c := range chunks {
		for _, v := range c {
			data = append(data, int(v))
		}
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav close: %w", err)
	}
	return ws.buf, nil
}

type pcmEncoder struct{}

func (pcmEncoder) MIME() string { return "audio/l16" }

func (pcmEncoder) Encode(_ int, chunks [][]int16) ([]byte, error) {
	var n int
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n*2)
	var tmp [2]byte
	for _, c := range chunks {
		for _, v := range c {
			binary.LittleEndian.PutUint16(tmp[:], uint16(v))
			out = append(out, tmp[0], tmp[1])
		}
	}
	return out, nil
}

// memWriteSeeker satisfies the io.WriteSeeker the wav encoder needs for its
// header patch, without touching the filesystem.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int
	switch whence {
	case io.SeekStart:
		abs = int(offset)
	case io.SeekCurrent:
		abs = m.pos + int(offset)
	case io.SeekEnd:
		abs = len(m.buf) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	m.pos = abs
	return int64(abs), nil
}
