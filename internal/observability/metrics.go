package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapturesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_captures_total",
		Help: "Total microphone capture sessions started",
	})

	CaptureStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_capture_stops_total",
		Help: "Capture session stops by cause",
	}, []string{"cause"}) // silence, manual, timeout

	STTRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_stt_requests_total",
		Help: "Speech-to-text requests by status",
	}, []string{"status"})

	STTLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_client_stt_latency_seconds",
		Help:    "Speech-to-text round-trip latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	StreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_stream_events_total",
		Help: "Streamed reply events by type",
	}, []string{"type"}) // delta, done, malformed

	StreamFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_stream_fallbacks_total",
		Help: "Streaming sends that fell back to the non-streaming endpoint",
	})

	Utterances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_utterances_total",
		Help: "Playback utterances by backend",
	}, []string{"backend"}) // remote, local

	TTSLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_client_tts_first_audio_seconds",
		Help:    "Latency until first synthesized audio byte",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	BargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_barge_ins_total",
		Help: "Times a new recording interrupted active playback",
	})
)
