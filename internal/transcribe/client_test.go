package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nonotalk/voice-client/internal/capture"
)

func TestTranscribe_Success(t *testing.T) {
	var gotName, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech-to-text" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		f, fh, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(400)
			return
		}
		defer f.Close()
		gotName = fh.Filename
		gotType = fh.Header.Get("Content-Type")
		_, _ = io.Copy(io.Discard, f)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transcript":"  bonjour nono  "}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	got := c.Transcribe(context.Background(), capture.Payload{Bytes: []byte{1, 2, 3}, MIME: "audio/wav"})
	if got != "bonjour nono" {
		t.Fatalf("expected trimmed transcript, got %q", got)
	}
	if gotName != "recording.wav" {
		t.Fatalf("expected recording.wav, got %q", gotName)
	}
	if gotType != "audio/wav" {
		t.Fatalf("expected audio/wav part type, got %q", gotType)
	}
}

func TestTranscribe_FailsSoft(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_500", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }},
		{"status_401", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(401) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not-json")) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewClient(srv.URL, "")
			if got := c.Transcribe(context.Background(), capture.Payload{Bytes: []byte{0}, MIME: "audio/wav"}); got != "" {
				t.Fatalf("expected empty transcript, got %q", got)
			}
		})
	}
}

func TestTranscribe_TransportErrorYieldsEmpty(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "")
	c.HTTPClient = &http.Client{Timeout: 100 * time.Millisecond}
	// zero-byte payload must also be fine
	if got := c.Transcribe(context.Background(), capture.Payload{MIME: "audio/wav"}); got != "" {
		t.Fatalf("expected empty transcript on transport error, got %q", got)
	}
}

func TestExtFor(t *testing.T) {
	cases := map[string]string{
		"audio/wav":             "wav",
		"audio/webm;codecs=opus": "webm",
		"audio/mp4":             "mp4",
		"audio/l16":             "wav",
		"":                      "wav",
	}
	for mime, want := range cases {
		if got := extFor(mime); got != want {
			t.Fatalf("extFor(%q) = %q, want %q", mime, got, want)
		}
	}
	if !strings.HasPrefix(extFor("audio/webm"), "webm") {
		t.Fatalf("webm mapping broken")
	}
}
