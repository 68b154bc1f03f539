package types

import (
	"fmt"
	"strings"
	"time"
)

// Speaker labels used in transcript entries. The telephony side of a call is
// always the patient; everything the voice agent says is labeled agent.
const (
	SpeakerPatient = "patient"
	SpeakerAgent   = "agent"
)

// TranscriptEntry is one turn of the conversation. Entries are append-only
// and ordered by event receipt.
type TranscriptEntry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FormatTranscript renders entries as "speaker: text" lines, the shape the
// cognitive pipeline and the sentiment service both consume.
func FormatTranscript(entries []TranscriptEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", e.Speaker, e.Text)
	}
	return b.String()
}
