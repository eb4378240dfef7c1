// Package tts streams synthesized speech audio from the backend.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nonotalk/voice-client/internal/observability"
)

// Client calls the backend's ElevenLabs proxy endpoint. The response body is
// raw PCM16 audio streamed as it is rendered.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string
	log        zerolog.Logger
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		// no client timeout: the body streams for the length of the utterance
		HTTPClient: &http.Client{Timeout: 0},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		log:        observability.Component("tts"),
	}
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// StreamPCM posts the text and streams the rendered audio in chunks. The
// error channel carries at most one error; both channels close when the
// stream ends or the context is cancelled.
func (c *Client) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(pcmCh)
		defer close(errCh)

		buf, _ := json.Marshal(synthesizeRequest{Text: text})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/tts/elevenlabs", bytes.NewReader(buf))
		if err != nil {
			errCh <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}

		start := time.Now()
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			errCh <- fmt.Errorf("tts request: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			errCh <- fmt.Errorf("tts status=%d body=%s", resp.StatusCode, string(b))
			return
		}

		first := true
		chunk := make([]byte, 4096)
		for {
			n, rerr := resp.Body.Read(chunk)
			if n > 0 {
				if first {
					observability.TTSLatency.Observe(time.Since(start).Seconds())
					first = false
				}
				out := make([]byte, n)
				copy(out, chunk[:n])
				select {
				case pcmCh <- out:
				case <-ctx.Done():
					return
				}
			}
			if rerr != nil {
				if rerr == io.EOF {
					return
				}
				if ctx.Err() == nil {
					errCh <- fmt.Errorf("tts read: %w", rerr)
				}
				return
			}
		}
	}()

	return pcmCh, errCh
}
