package chat

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	// minimum accumulated length before the first utterance may fire
	firstUtteranceMin = 8
	// bound on the first-utterance snippet
	snippetMax = 80
	// a cut point must sit at or past this position to be worth speaking
	cutFloor = 10
	// after this much wall time without a sentence end, a word boundary
	// is good enough for the first utterance
	firstUtteranceStall = 300 * time.Millisecond
)

// sentenceRe matches one complete sentence: text up to terminal punctuation
// followed by whitespace or end of input.
var sentenceRe = regexp.MustCompile(`[^.!?…]+[.!?…](?:\s|$)`)

// StreamingReply tracks one streamed assistant reply: the accumulated text
// and how much of it has already been spoken. The cursor only ever moves
// forward, so no character range is spoken twice.
type StreamingReply struct {
	ConversationID string

	text                string
	lastSpokenIndex     int
	firstSentenceSpoken bool
	firstDeltaAt        time.Time
	now                 func() time.Time
}

func newStreamingReply(conversationID string) *StreamingReply {
	return &StreamingReply{ConversationID: conversationID, now: time.Now}
}

// Append adds a delta fragment and returns the utterances that became
// speakable because of it, in source order.
func (r *StreamingReply) Append(delta string) []string {
	if r.text == "" && delta != "" {
		r.firstDeltaAt = r.now()
	}
	r.text += delta
	var out []string

	// immediate first utterance: fires at most once, before any complete
	// sentence exists, to cut perceived latency on long openings
	if !r.firstSentenceSpoken && len(strings.TrimSpace(r.text)) >= firstUtteranceMin {
		stalled := !r.firstDeltaAt.IsZero() && r.now().Sub(r.firstDeltaAt) >= firstUtteranceStall
		if snippet, end := makeSnippet(r.text, stalled); snippet != "" {
			out = append(out, snippet)
			r.firstSentenceSpoken = true
			r.lastSpokenIndex = end
		}
	}

	out = append(out, r.scanSentences()...)
	return out
}

// scanSentences speaks every newly completed sentence past the cursor.
func (r *StreamingReply) scanSentences() []string {
	var out []string
	for {
		tail := r.text[r.lastSpokenIndex:]
		loc := sentenceRe.FindStringIndex(tail)
		if loc == nil {
			return out
		}
		sentence := strings.TrimSpace(tail[loc[0]:loc[1]])
		if sentence != "" {
			out = append(out, sentence)
			r.firstSentenceSpoken = true
		}
		r.lastSpokenIndex += loc[1]
	}
}

// Remainder consumes everything past the cursor, for the done finalization.
func (r *StreamingReply) Remainder() string {
	rest := strings.TrimSpace(r.text[r.lastSpokenIndex:])
	r.lastSpokenIndex = len(r.text)
	return rest
}

// Text returns the accumulated reply text.
func (r *StreamingReply) Text() string { return r.text }

// makeSnippet extracts the bounded first utterance from raw accumulated
// text. It cuts at the first sentence-ending punctuation at or past the cut
// floor; with no sentence end in the first snippetMax runes it cuts at the
// last whitespace, else hard at the bound. Under the bound it normally
// returns "" and waits for more text, unless stalled is set, in which case
// a whitespace cut past the floor is accepted. The second return value is
// the byte offset just past the consumed range.
func makeSnippet(raw string, stalled bool) (string, int) {
	lead := 0
	for lead < len(raw) && (raw[lead] == ' ' || raw[lead] == '\n' || raw[lead] == '\t' || raw[lead] == '\r') {
		lead++
	}
	runes := []rune(raw[lead:])
	window := runes
	if len(window) > snippetMax {
		window = window[:snippetMax]
	}

	cut := -1
	for i, r := range window {
		if i < cutFloor {
			continue
		}
		if r == '.' || r == '!' || r == '?' || r == '…' {
			cut = i + 1
			break
		}
	}
	if cut < 0 {
		if len(runes) < snippetMax && !stalled {
			// no sentence end yet and still under the bound: wait for more
			return "", 0
		}
		for i := len(window) - 1; i >= cutFloor; i-- {
			if unicode.IsSpace(window[i]) {
				cut = i
				break
			}
		}
		if cut < 0 {
			if len(runes) < snippetMax {
				// stalled with no usable word boundary yet, keep waiting
				return "", 0
			}
			cut = len(window)
		}
	}

	consumed := len(string(window[:cut]))
	snippet := strings.TrimSpace(string(window[:cut]))
	return snippet, lead + consumed
}
