// Package playback turns reply text into audible speech, one utterance at a
// time. Sentences queue and play back-to-back; a stop call silences
// everything at once, which is what makes barge-in feel instant.
package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nonotalk/voice-client/internal/observability"
)

// Synthesizer renders text to a PCM16 byte stream.
type Synthesizer interface {
	StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Sink consumes PCM16 bytes and plays them. Reset drops anything queued
// inside the sink immediately.
type Sink interface {
	WritePCM(pcm []byte) error
	Reset()
}

// NullSynthesizer is the local fallback when the remote backend fails: it
// produces no audio, so a synthesis outage degrades to silence rather than
// an error surfaced to the user.
type NullSynthesizer struct{}

func (NullSynthesizer) StreamPCM(context.Context, string) (<-chan []byte, <-chan error) {
	pcm := make(chan []byte)
	errs := make(chan error)
	close(pcm)
	close(errs)
	return pcm, errs
}

type jobKind int

const (
	jobSpeak jobKind = iota
	jobRemote
)

type job struct {
	kind   jobKind
	target string // text or audio URL
}

// Player serializes utterances through a single worker. At most one audio
// resource is live at a time; each utterance supersedes the last.
type Player struct {
	remote Synthesizer
	local  Synthesizer
	sink   Sink
	fetch  *http.Client
	log    zerolog.Logger

	mu     sync.Mutex
	idle   *sync.Cond // signalled when the worker finishes an utterance
	jobs   []job
	cancel context.CancelFunc // current utterance, nil when idle
	active bool
	closed bool
	wake   chan struct{}
}

// New starts the playback worker. remote may be nil when only URL playback
// is configured; local is used when remote synthesis fails.
func New(remote, local Synthesizer, sink Sink) *Player {
	if local == nil {
		local = NullSynthesizer{}
	}
	p := &Player{
		remote: remote,
		local:  local,
		sink:   sink,
		fetch:  &http.Client{Timeout: 60 * time.Second},
		log:    observability.Component("playback"),
		wake:   make(chan struct{}, 1),
	}
	p.idle = sync.NewCond(&p.mu)
	go p.run()
	return p
}

// Speak queues text for synthesis and returns immediately. Utterances play
// in the order they were queued.
func (p *Player) Speak(text string) {
	if text == "" {
		return
	}
	p.enqueue(job{kind: jobSpeak, target: text})
}

// PlayRemote queues a backend-rendered audio URL for playback.
func (p *Player) PlayRemote(url string) {
	if url == "" {
		return
	}
	p.enqueue(job{kind: jobRemote, target: url})
}

// Busy reports whether any utterance is playing or queued.
func (p *Player) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active || len(p.jobs) > 0
}

// Stop drops the queue, cancels the current utterance and waits until the
// worker is idle, so the busy flag is already false when Stop returns. Safe
// to call when nothing is playing, and safe to call repeatedly.
func (p *Player) Stop() {
	p.mu.Lock()
	p.jobs = nil
	if p.cancel != nil {
		p.cancel()
	}
	p.sink.Reset()
	for p.active {
		p.idle.Wait()
	}
	p.mu.Unlock()
}

// Close stops playback and shuts the worker down.
func (p *Player) Close() {
	p.Stop()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.signal()
}

func (p *Player) enqueue(j job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.jobs = append(p.jobs, j)
	p.mu.Unlock()
	p.signal()
}

func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) run() {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		if len(p.jobs) == 0 {
			p.mu.Unlock()
			<-p.wake
			continue
		}
		j := p.jobs[0]
		p.jobs = p.jobs[1:]
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.active = true
		p.mu.Unlock()

		switch j.kind {
		case jobSpeak:
			p.playSpeech(ctx, j.target)
		case jobRemote:
			p.playURL(ctx, j.target)
		}

		cancel()
		p.mu.Lock()
		p.cancel = nil
		p.active = false
		p.idle.Broadcast()
		p.mu.Unlock()
	}
}

// playSpeech streams the remote synthesis; if the backend produced no audio
// at all it retries once through the local synthesizer.
func (p *Player) playSpeech(ctx context.Context, text string) {
	if p.remote != nil {
		wrote, err := p.drain(ctx, p.remote, text)
		if err != nil {
			p.log.Warn().Err(err).Msg("remote synthesis failed")
		}
		if wrote || ctx.Err() != nil {
			observability.Utterances.WithLabelValues("remote").Inc()
			return
		}
	}
	if _, err := p.drain(ctx, p.local, text); err != nil {
		p.log.Warn().Err(err).Msg("local synthesis failed")
		return
	}
	observability.Utterances.WithLabelValues("local").Inc()
}

func (p *Player) drain(ctx context.Context, s Synthesizer, text string) (bool, error) {
	pcmCh, errCh := s.StreamPCM(ctx, text)
	wrote := false
	for pcmCh != nil || errCh != nil {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				pcmCh = nil
				continue
			}
			if ctx.Err() != nil {
				continue // drop; utterance was superseded or stopped
			}
			if err := p.sink.WritePCM(b); err != nil {
				return wrote, fmt.Errorf("sink write: %w", err)
			}
			wrote = true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return wrote, err
			}
		case <-ctx.Done():
			return wrote, nil
		}
	}
	return wrote, nil
}

func (p *Player) playURL(ctx context.Context, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.log.Warn().Err(err).Str("url", url).Msg("bad audio url")
		return
	}
	resp, err := p.fetch.Do(req)
	if err != nil {
		p.log.Warn().Err(err).Str("url", url).Msg("audio fetch failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("audio fetch non-success")
		return
	}

	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 && ctx.Err() == nil {
			if err := p.sink.WritePCM(buf[:n]); err != nil {
				p.log.Warn().Err(err).Msg("sink write failed")
				return
			}
		}
		if rerr != nil {
			if rerr != io.EOF && ctx.Err() == nil {
				p.log.Warn().Err(rerr).Msg("audio read failed")
			}
			observability.Utterances.WithLabelValues("remote").Inc()
			return
		}
	}
}
