package livevoice

import (
	"strings"
	"sync"
)

// TranscriptEntry is one transcript line as delivered by OnTranscript.
type TranscriptEntry struct {
	Text   string
	IsUser bool
}

// TranscriptLog records the conversation transcript in delivery order. It is
// safe for concurrent use.
type TranscriptLog struct {
	mu      sync.Mutex
	entries []TranscriptEntry
}

// Record matches the OnTranscript signature. Non-final fragments are ignored.
func (t *TranscriptLog) Record(text string, isFinal, isUser bool) {
	if !isFinal || text == "" {
		return
	}
	t.mu.Lock()
	t.entries = append(t.entries, TranscriptEntry{Text: text, IsUser: isUser})
	t.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (t *TranscriptLog) Entries() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// String renders the transcript as "user: ..." and "model: ..." lines.
func (t *TranscriptLog) String() string {
	var b strings.Builder
	for _, e := range t.Entries() {
		if e.IsUser {
			b.WriteString("user: ")
		} else {
			b.WriteString("model: ")
		}
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
