package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStreamPCM_DeliversChunksInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text != "bonjour" {
			t.Errorf("bad request body: %v %q", err, req.Text)
		}
		fl, _ := w.(http.Flusher)
		_, _ = w.Write([]byte{1, 1})
		if fl != nil {
			fl.Flush()
		}
		_, _ = w.Write([]byte{2, 2})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	pcmCh, errCh := c.StreamPCM(context.Background(), "bonjour")

	var got []byte
	for b := range pcmCh {
		got = append(got, b...)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 4 || got[0] != 1 || got[3] != 2 {
		t.Fatalf("unexpected bytes %v", got)
	}
}

func TestStreamPCM_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	pcmCh, errCh := c.StreamPCM(context.Background(), "x")
	for range pcmCh {
		t.Fatalf("no audio expected on error")
	}
	if err := <-errCh; err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestStreamPCM_ContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl, _ := w.(http.Flusher)
		_, _ = w.Write([]byte{1})
		if fl != nil {
			fl.Flush()
		}
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, "")
	pcmCh, errCh := c.StreamPCM(ctx, "x")
	<-pcmCh
	cancel()

	select {
	case <-errCh:
		// closed (with or without error) once the context is gone
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not terminate on cancel")
	}
}
