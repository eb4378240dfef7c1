// Package chat drives one outgoing message through the streaming reply
// endpoint, speaking the reply progressively as sentences complete, with a
// non-streaming fallback that keeps the conversation loop alive when the
// stream is unavailable.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nonotalk/voice-client/internal/observability"
)

var (
	// ErrQuotaExhausted maps the backend's 403 on send.
	ErrQuotaExhausted = errors.New("chat: quota exhausted")
	// ErrUnauthorized maps the backend's 401 on send.
	ErrUnauthorized = errors.New("chat: not authenticated")
)

// Coordinator owns the send path: streaming first, single-shot fallback.
type Coordinator struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string

	speaker  Speaker
	store    Store
	onQuota  func(remaining int)
	onCrisis func(emergencyMessage string)
	log      zerolog.Logger
}

// Option tweaks coordinator construction.
type Option func(*Coordinator)

// WithQuotaCallback is invoked whenever the backend reports remaining quota.
func WithQuotaCallback(fn func(int)) Option { return func(c *Coordinator) { c.onQuota = fn } }

// WithCrisisCallback is invoked when the fallback send flags a crisis.
func WithCrisisCallback(fn func(string)) Option { return func(c *Coordinator) { c.onCrisis = fn } }

func NewCoordinator(baseURL, token string, speaker Speaker, store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		HTTPClient: &http.Client{Timeout: 0},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		speaker:    speaker,
		store:      store,
		log:        observability.Component("chat"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type sendRequest struct {
	Message string  `json:"message"`
	Emotion *string `json:"emotion"`
}

// Send streams the reply for one outgoing message, feeding the speaker as
// sentences complete. On any stream failure it falls back to the
// non-streaming endpoint with the same arguments, so the user's message is
// delivered at least once.
func (c *Coordinator) Send(ctx context.Context, conversationID, message string, emotion *string) error {
	if strings.TrimSpace(message) == "" || conversationID == "" {
		return nil
	}

	resp, err := c.openStream(ctx, conversationID, message, emotion)
	if err != nil {
		c.log.Warn().Err(err).Msg("stream unavailable, falling back")
		observability.StreamFallbacks.Inc()
		return c.sendOnce(ctx, conversationID, message, emotion)
	}
	defer resp.Body.Close()

	reply := newStreamingReply(conversationID)
	if err := c.consume(ctx, resp.Body, reply); err != nil {
		c.log.Warn().Err(err).Msg("stream broke mid-reply, falling back")
		observability.StreamFallbacks.Inc()
		return c.sendOnce(ctx, conversationID, message, emotion)
	}
	return nil
}

func (c *Coordinator) openStream(ctx context.Context, conversationID, message string, emotion *string) (*http.Response, error) {
	body, _ := json.Marshal(sendRequest{Message: message, Emotion: emotion})
	url := fmt.Sprintf("%s/chat/conversations/%s/send-stream", c.BaseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("stream status=%d", resp.StatusCode)
	}
	return resp, nil
}

// consume reads the event stream to completion. Frames are blank-line
// delimited; each carries a "data:" payload parsed into a tagged event.
// Malformed frames are counted and skipped, never fatal.
func (c *Coordinator) consume(ctx context.Context, body io.Reader, reply *StreamingReply) error {
	var sseBuf string
	chunk := make([]byte, 4096)
	for {
		n, rerr := body.Read(chunk)
		if n > 0 {
			sseBuf += string(chunk[:n])
			frames := strings.Split(sseBuf, "\n\n")
			sseBuf = frames[len(frames)-1]
			for _, frame := range frames[:len(frames)-1] {
				c.handleFrame(frame, reply)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return rerr
		}
	}
}

func (c *Coordinator) handleFrame(frame string, reply *StreamingReply) {
	line := strings.TrimSpace(frame)
	if !strings.HasPrefix(line, "data:") {
		return
	}
	payload := strings.TrimSpace(line[len("data:"):])
	if payload == "" {
		return
	}

	var ev streamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		observability.StreamEvents.WithLabelValues("malformed").Inc()
		return
	}

	switch ev.Type {
	case "delta":
		if ev.Content == "" {
			observability.StreamEvents.WithLabelValues("malformed").Inc()
			return
		}
		observability.StreamEvents.WithLabelValues("delta").Inc()
		for _, utterance := range reply.Append(ev.Content) {
			c.speaker.Speak(utterance)
		}
	case "done":
		observability.StreamEvents.WithLabelValues("done").Inc()
		c.finalize(ev, reply)
	default:
		observability.StreamEvents.WithLabelValues("malformed").Inc()
	}
}

// finalize persists the server-confirmed messages, updates quota, then
// speaks whatever suffix of the reply has not been spoken yet.
func (c *Coordinator) finalize(ev streamEvent, reply *StreamingReply) {
	var msgs []Message
	if ev.UserMessage != nil {
		msgs = append(msgs, *ev.UserMessage)
	}
	if ev.AIMessage != nil {
		msgs = append(msgs, *ev.AIMessage)
	}
	if len(msgs) > 0 {
		if err := c.store.Append(reply.ConversationID, msgs...); err != nil {
			c.log.Warn().Err(err).Msg("store append failed")
		}
	}
	if ev.QuotaRemaining != nil && c.onQuota != nil {
		c.onQuota(*ev.QuotaRemaining)
	}
	if rest := reply.Remainder(); rest != "" {
		c.speaker.Speak(rest)
	}
}

// sendOnce is the single-shot fallback path.
func (c *Coordinator) sendOnce(ctx context.Context, conversationID, message string, emotion *string) error {
	body, _ := json.Marshal(sendRequest{Message: message, Emotion: emotion})
	url := fmt.Sprintf("%s/chat/conversations/%s/send", c.BaseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.HTTPClient
	if client.Timeout == 0 {
		client = &http.Client{Timeout: 30 * time.Second, Transport: c.HTTPClient.Transport}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return ErrQuotaExhausted
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("send status=%d", resp.StatusCode)
	}

	var res SendResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("send decode: %w", err)
	}

	if res.CrisisDetected {
		if c.onCrisis != nil {
			c.onCrisis(res.EmergencyMessage)
		}
		return nil
	}

	var msgs []Message
	if res.UserMessage != nil {
		msgs = append(msgs, *res.UserMessage)
	}
	if res.AIMessage != nil {
		msgs = append(msgs, *res.AIMessage)
	}
	if len(msgs) > 0 {
		if err := c.store.Append(conversationID, msgs...); err != nil {
			c.log.Warn().Err(err).Msg("store append failed")
		}
	}
	if c.onQuota != nil {
		c.onQuota(res.QuotaRemaining)
	}
	if res.AIMessage != nil && res.AIMessage.Content != "" {
		c.speaker.Speak(res.AIMessage.Content)
	}
	return nil
}
