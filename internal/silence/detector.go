// Package silence decides, from the live capture energy, when the speaker
// has stopped talking.
package silence

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nonotalk/voice-client/internal/bus"
	"github.com/nonotalk/voice-client/internal/capture"
	"github.com/nonotalk/voice-client/internal/observability"
)

// Monitored is the slice of a capture session the detector watches.
type Monitored interface {
	State() capture.State
	Level() float64
	Cause() capture.StopCause
	Stop(capture.StopCause) (capture.Payload, error)
}

// Detector samples the session energy at frame cadence and requests a stop
// after a sustained quiet window. One detector serves one session.
type Detector struct {
	threshold float64       // 0-255 energy scale, ~30 empirically
	duration  time.Duration // quiet window before end-of-speech, 1.2-2.0s
	interval  time.Duration // sampling cadence
	log       zerolog.Logger
}

func NewDetector(threshold float64, duration, interval time.Duration) *Detector {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Detector{
		threshold: threshold,
		duration:  duration,
		interval:  interval,
		log:       observability.Component("silence"),
	}
}

// Watch blocks until it either detects end of speech or the session stops by
// other means. End of speech is signalled exactly once: the session is asked
// to stop and the moment is published on the bus. Once the session leaves
// the recording state for any reason the detector schedules no further
// checks, so it can never fire against an already-released stream.
func (d *Detector) Watch(sess Monitored, b *bus.Bus) {
	lastSound := time.Now()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for range ticker.C {
		if sess.State() != capture.StateRecording {
			// the safety timeout ends the turn just like silence does, so
			// the utterance still flows downstream; a manual stop publishes
			// its own signal
			if sess.Cause() == capture.StopTimeout {
				b.PublishSpeechEnded(time.Now())
			}
			return
		}
		if sess.Level() > d.threshold {
			lastSound = time.Now()
			continue
		}
		if quiet := time.Since(lastSound); quiet > d.duration {
			d.log.Debug().Dur("quiet", quiet).Msg("end of speech detected")
			at := time.Now()
			if _, err := sess.Stop(capture.StopSilence); err != nil {
				d.log.Warn().Err(err).Msg("silence stop failed")
			}
			b.PublishSpeechEnded(at)
			return
		}
	}
}
