package chat

import (
	"strings"
	"testing"
	"time"
)

// feed appends the chunks in order and collects every utterance produced,
// including the final remainder.
func feed(t *testing.T, chunks []string) []string {
	t.Helper()
	r := newStreamingReply("conv-1")
	var out []string
	for _, ch := range chunks {
		out = append(out, r.Append(ch)...)
	}
	if rest := r.Remainder(); rest != "" {
		out = append(out, rest)
	}
	return out
}

func TestStreamingReplyUtterancesStableAcrossChunking(t *testing.T) {
	const text = "Bonjour, comment vas-tu? Je suis là."
	want := []string{"Bonjour, comment vas-tu?", "Je suis là."}

	splits := map[string][]string{
		"whole":     {text},
		"two":       {"Bonjour, comment vas-", "tu? Je suis là."},
		"punct":     {"Bonjour, comment vas-tu?", " Je suis là."},
		"ragged":    {"Bon", "jour, com", "ment vas-tu? Je s", "uis là."},
		"char-wise": strings.Split(text, ""),
	}

	for name, chunks := range splits {
		got := feed(t, chunks)
		if len(got) != len(want) {
			t.Fatalf("%s: got %d utterances %q, want %d", name, len(got), got, len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s: utterance %d = %q, want %q", name, i, got[i], want[i])
			}
		}
	}
}

func TestStreamingReplyShortFinalReply(t *testing.T) {
	r := newStreamingReply("conv-1")
	if got := r.Append("Oui"); len(got) != 0 {
		t.Fatalf("short fragment should not be speakable yet, got %q", got)
	}
	if rest := r.Remainder(); rest != "Oui" {
		t.Fatalf("Remainder() = %q, want %q", rest, "Oui")
	}
	if rest := r.Remainder(); rest != "" {
		t.Fatalf("second Remainder() = %q, want empty", rest)
	}
}

func TestStreamingReplyNoRespeak(t *testing.T) {
	r := newStreamingReply("conv-1")
	var spoken []string
	for _, ch := range []string{"Première phrase. ", "Deuxième phrase. ", "Et une fin sans point"} {
		spoken = append(spoken, r.Append(ch)...)
	}
	spoken = append(spoken, r.Remainder())

	joined := strings.Join(spoken, " ")
	for _, s := range []string{"Première phrase.", "Deuxième phrase.", "Et une fin sans point"} {
		if strings.Count(joined, s) != 1 {
			t.Errorf("%q spoken %d times in %q", s, strings.Count(joined, s), spoken)
		}
	}
}

func TestStreamingReplyImmediateFiresOnceOnly(t *testing.T) {
	r := newStreamingReply("conv-1")
	got := r.Append("Oui. ")
	if len(got) != 1 || got[0] != "Oui." {
		t.Fatalf("Append = %q, want [\"Oui.\"]", got)
	}
	// a long unterminated continuation must wait for the done remainder
	if got := r.Append("Peut-être que demain tout ira mieux"); len(got) != 0 {
		t.Fatalf("continuation should not fire, got %q", got)
	}
	if rest := r.Remainder(); rest != "Peut-être que demain tout ira mieux" {
		t.Fatalf("Remainder() = %q", rest)
	}
}

func TestStreamingReplyLongOpeningWithoutPunctuation(t *testing.T) {
	r := newStreamingReply("conv-1")
	long := strings.Repeat("mot ", 40) // 160 runes, no sentence end
	got := r.Append(long)
	if len(got) != 1 {
		t.Fatalf("got %d utterances %q, want 1 bounded snippet", len(got), got)
	}
	if n := len([]rune(got[0])); n > snippetMax {
		t.Fatalf("snippet length %d exceeds bound %d", n, snippetMax)
	}
}

func TestStreamingReplySlowOpeningSpeaksAtWordBoundary(t *testing.T) {
	r := newStreamingReply("conv-1")
	base := time.Now()
	clock := base
	r.now = func() time.Time { return clock }

	if got := r.Append("Alors écoute "); len(got) != 0 {
		t.Fatalf("fresh unterminated opening should wait, got %q", got)
	}

	// the stream stalls, then delivers another fragment without punctuation
	clock = base.Add(500 * time.Millisecond)
	got := r.Append("moi bien")
	if len(got) != 1 || got[0] != "Alors écoute moi" {
		t.Fatalf("stalled opening = %q, want [\"Alors écoute moi\"]", got)
	}
	if rest := r.Remainder(); rest != "bien" {
		t.Fatalf("Remainder() = %q, want %q", rest, "bien")
	}
}

func TestMakeSnippet(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		stalled bool
		want    string
	}{
		{"waits while short", "Bonjour,", false, ""},
		{"waits past early punct", "Oui. Non", false, ""},
		{"cuts at first sentence end", "Salut tout le monde. Et ensuite encore", false, "Salut tout le monde."},
		{"cuts at question mark", "Bonjour, comment vas-tu? Je suis là.", false, "Bonjour, comment vas-tu?"},
		{"skips leading whitespace", "   Salut tout le monde. Suite", false, "Salut tout le monde."},
		{"stalled cuts at word boundary", "Alors écoute moi bien", true, "Alors écoute moi"},
		{"stalled waits without boundary", "Incompréhensible", true, ""},
	}
	for _, tt := range tests {
		got, _ := makeSnippet(tt.raw, tt.stalled)
		if got != tt.want {
			t.Errorf("%s: makeSnippet(%q, %v) = %q, want %q", tt.name, tt.raw, tt.stalled, got, tt.want)
		}
	}

	// no punctuation at all: word boundary cut inside the bound
	raw := strings.Repeat("mot ", 40)
	got, end := makeSnippet(raw, false)
	if got == "" {
		t.Fatal("expected a bounded snippet")
	}
	if len([]rune(got)) > snippetMax {
		t.Fatalf("snippet %d runes, bound %d", len([]rune(got)), snippetMax)
	}
	if end <= 0 || end > len(raw) {
		t.Fatalf("consumed offset %d out of range", end)
	}
}
