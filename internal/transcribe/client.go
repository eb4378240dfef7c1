// Package transcribe posts captured audio to the backend speech-to-text
// endpoint. It fails soft: the caller sees an empty transcript whether the
// user said nothing or the network fell over.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nonotalk/voice-client/internal/capture"
	"github.com/nonotalk/voice-client/internal/observability"
)

type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string
	log        zerolog.Logger
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		log:        observability.Component("transcribe"),
	}
}

type transcriptResponse struct {
	Transcript string `json:"transcript"`
}

// Transcribe uploads the payload and returns the recognized text, or "" on
// any transport or HTTP failure. It never returns an error.
func (c *Client) Transcribe(ctx context.Context, p capture.Payload) string {
	start := time.Now()
	text := c.transcribe(ctx, p)
	observability.STTLatency.Observe(time.Since(start).Seconds())
	if text == "" {
		observability.STTRequests.WithLabelValues("empty").Inc()
	} else {
		observability.STTRequests.WithLabelValues("ok").Inc()
	}
	return text
}

func (c *Client) transcribe(ctx context.Context, p capture.Payload) string {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="audio"; filename="recording.`+extFor(p.MIME)+`"`)
	hdr.Set("Content-Type", p.MIME)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		c.log.Warn().Err(err).Msg("multipart create failed")
		return ""
	}
	if _, err := part.Write(p.Bytes); err != nil {
		c.log.Warn().Err(err).Msg("multipart write failed")
		return ""
	}
	if err := mw.Close(); err != nil {
		c.log.Warn().Err(err).Msg("multipart close failed")
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/speech-to-text", &body)
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("speech-to-text request failed")
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("speech-to-text non-success")
		return ""
	}

	var tr transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		c.log.Warn().Err(err).Msg("speech-to-text bad response body")
		return ""
	}
	return strings.TrimSpace(tr.Transcript)
}

// extFor maps the negotiated container MIME onto the filename extension the
// backend keys its decoding on.
func extFor(mime string) string {
	switch {
	case strings.Contains(mime, "mp4"):
		return "mp4"
	case strings.Contains(mime, "webm"):
		return "webm"
	default:
		return "wav"
	}
}
