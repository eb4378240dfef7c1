// Package agent ties the voice pipeline together: it owns the turn
// lifecycle from microphone capture through transcription to the spoken
// reply, including barge-in when the user talks over the assistant.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nonotalk/voice-client/internal/bus"
	"github.com/nonotalk/voice-client/internal/capture"
	"github.com/nonotalk/voice-client/internal/chat"
	"github.com/nonotalk/voice-client/internal/observability"
	"github.com/nonotalk/voice-client/internal/silence"
)

// lowQuotaWarnAt is the remaining-message level at which startup warns.
const lowQuotaWarnAt = 2

// Agent orchestrates one conversation. One session records at a time; a new
// turn displaces whatever the previous turn was still doing.
type Agent struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string

	recorder Recorder
	detector *silence.Detector
	bus      *bus.Bus
	stt      Transcriber
	sender   Sender
	player   Player
	history  History
	log      zerolog.Logger

	// identical transcripts inside this window are treated as one utterance
	dedupWindow time.Duration

	mu         sync.Mutex
	convID     string
	emotion    string
	current    *capture.Session
	sendCancel context.CancelFunc
	lastText   string
	lastAt     time.Time
	recent     []chat.Message
}

func New(recorder Recorder, detector *silence.Detector, b *bus.Bus, stt Transcriber, sender Sender, player Player, baseURL, token string) *Agent {
	return &Agent{
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Token:       token,
		recorder:    recorder,
		detector:    detector,
		bus:         b,
		stt:         stt,
		sender:      sender,
		player:      player,
		log:         observability.Component("agent"),
		dedupWindow: 2 * time.Second,
	}
}

// SetEmotion tags subsequent messages with the user's selected emotion.
func (a *Agent) SetEmotion(emotion string) {
	a.mu.Lock()
	a.emotion = emotion
	a.mu.Unlock()
}

// ConversationID returns the active conversation, if any.
func (a *Agent) ConversationID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.convID
}

// SetHistory attaches the local message cache. Subsequent conversation
// selections replay the cached tail through it.
func (a *Agent) SetHistory(h History) {
	a.mu.Lock()
	a.history = h
	a.mu.Unlock()
}

// SetConversation points the agent at an existing conversation and reloads
// the locally cached messages for it.
func (a *Agent) SetConversation(id string) {
	a.mu.Lock()
	a.convID = id
	h := a.history
	a.mu.Unlock()
	if h == nil || id == "" {
		return
	}
	msgs, err := h.Recent(id)
	if err != nil {
		a.log.Warn().Err(err).Str("conversation", id).Msg("cached history read failed")
		return
	}
	a.mu.Lock()
	a.recent = msgs
	a.mu.Unlock()
	a.log.Info().Str("conversation", id).Int("messages", len(msgs)).Msg("cached context loaded")
}

// CachedContext returns the messages replayed from the local cache when the
// conversation was last selected.
func (a *Agent) CachedContext() []chat.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]chat.Message(nil), a.recent...)
}

// Recording reports whether a capture session is currently live.
func (a *Agent) Recording() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil && a.current.State() == capture.StateRecording
}

// StartTurn begins a new user turn. Any playing reply is cut off, any
// in-flight reply stream is abandoned, and any stale recording is discarded
// before the microphone opens.
func (a *Agent) StartTurn() error {
	if a.player.Busy() {
		observability.BargeIns.Inc()
		a.log.Debug().Msg("barge-in: cutting off reply")
	}
	a.player.Stop()

	a.mu.Lock()
	stale := a.current
	cancel := a.sendCancel
	a.sendCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if stale != nil && stale.State() == capture.StateRecording {
		if _, err := stale.Stop(capture.StopManual); err != nil {
			a.log.Warn().Err(err).Msg("stale session stop failed")
		}
	}

	sess, err := a.recorder.Start()
	if err != nil {
		return fmt.Errorf("agent: start turn: %w", err)
	}
	a.mu.Lock()
	a.current = sess
	a.mu.Unlock()
	go a.detector.Watch(sess, a.bus)
	return nil
}

// StopTurn ends the current turn by hand, sending the utterance downstream
// just as a silence detection would.
func (a *Agent) StopTurn() {
	a.mu.Lock()
	sess := a.current
	a.mu.Unlock()
	if sess == nil || sess.State() != capture.StateRecording {
		return
	}
	if _, err := sess.Stop(capture.StopManual); err != nil {
		a.log.Warn().Err(err).Msg("manual stop failed")
		return
	}
	a.bus.PublishSpeechEnded(time.Now())
}

// Run is the pipeline loop: speech-ended signals become transcripts,
// transcripts become sent messages. It blocks until ctx is done.
func (a *Agent) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.bus.SpeechEnded():
			a.handleSpeechEnded(ctx)
		case t := <-a.bus.Transcriptions():
			a.handleTranscription(ctx, t)
		}
	}
}

func (a *Agent) handleSpeechEnded(ctx context.Context) {
	a.mu.Lock()
	sess := a.current
	a.current = nil
	a.mu.Unlock()
	if sess == nil {
		return
	}

	select {
	case <-sess.Done():
	case <-ctx.Done():
		return
	}
	payload := sess.Result()
	if len(payload.Bytes) == 0 {
		a.log.Debug().Str("session", sess.ID).Msg("empty capture, dropping turn")
		return
	}

	if text := a.stt.Transcribe(ctx, payload); text != "" {
		a.bus.PublishTranscription(bus.Transcription{Transcript: text, At: time.Now()})
	}
}

func (a *Agent) handleTranscription(ctx context.Context, t bus.Transcription) {
	text := strings.TrimSpace(t.Transcript)
	if text == "" {
		return
	}

	a.mu.Lock()
	if text == a.lastText && t.At.Sub(a.lastAt) < a.dedupWindow {
		a.mu.Unlock()
		a.log.Debug().Str("text", text).Msg("duplicate transcript dropped")
		return
	}
	a.lastText = text
	a.lastAt = t.At
	convID := a.convID
	var emotion *string
	if a.emotion != "" {
		e := a.emotion
		emotion = &e
	}
	if a.sendCancel != nil {
		a.sendCancel()
	}
	sendCtx, cancel := context.WithCancel(ctx)
	a.sendCancel = cancel
	a.mu.Unlock()

	if convID == "" {
		a.log.Warn().Msg("transcript dropped, no active conversation")
		cancel()
		return
	}

	go func() {
		defer cancel()
		if err := a.sender.Send(sendCtx, convID, text, emotion); err != nil {
			a.log.Error().Err(err).Msg("send failed")
		}
	}()
}

// EnsureConversation creates a conversation when none is active yet.
func (a *Agent) EnsureConversation(ctx context.Context) error {
	a.mu.Lock()
	have := a.convID != ""
	a.mu.Unlock()
	if have {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/chat/conversations", strings.NewReader("{}"))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent: create conversation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent: create conversation: status=%d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("agent: create conversation: %w", err)
	}
	if out.ID == "" {
		return fmt.Errorf("agent: create conversation: empty id")
	}
	a.SetConversation(out.ID)
	return nil
}

// CheckQuota asks the backend how many messages remain and warns when the
// user is close to the limit. Failures are logged, never fatal.
func (a *Agent) CheckQuota(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/auth/check-quota", nil)
	if err != nil {
		return 0, err
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("agent: check quota: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("agent: check quota: status=%d", resp.StatusCode)
	}

	var out struct {
		QuotaRemaining int `json:"quota_remaining"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("agent: check quota: %w", err)
	}
	if out.QuotaRemaining <= lowQuotaWarnAt {
		a.log.Warn().Int("remaining", out.QuotaRemaining).Msg("message quota nearly exhausted")
	}
	return out.QuotaRemaining, nil
}
