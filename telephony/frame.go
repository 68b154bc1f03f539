package telephony

import (
	"encoding/json"
	"fmt"

	"github.com/carelink-ai/callbridge/types"
)

// Frame events the media-stream protocol defines. Inbound frames carry
// connected/start/media/mark/stop; the bridge sends media/mark/clear.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventClear     = "clear"
)

// Frame is one JSON envelope on the media-stream WebSocket. Exactly one of
// the payload fields is populated, matching the Event tag. Downstream code
// switches over Event instead of probing raw maps.
type Frame struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSID      string        `json:"streamSid,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
}

// StartPayload announces a new stream. CustomParameters carries the
// patient identifier injected by the call-initiation layer.
type StartPayload struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid,omitempty"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks,omitempty"`
	MediaFormat      MediaFormat       `json:"mediaFormat,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaFormat describes the audio encoding negotiated for the stream.
type MediaFormat struct {
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// MediaPayload carries one chunk of base64-encoded audio.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// MarkPayload is the echo of a previously sent mark frame.
type MarkPayload struct {
	Name string `json:"name"`
}

// StopPayload signals the provider closed the stream.
type StopPayload struct {
	AccountSID string `json:"accountSid,omitempty"`
	CallSID    string `json:"callSid,omitempty"`
}

// ParseFrame decodes a raw envelope into a typed Frame. Unknown event tags
// and envelopes missing the payload their tag requires are protocol
// violations; the caller logs and ignores them without touching call state.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, types.NewError(types.ErrProtocolViolation, "malformed media-stream frame").WithCause(err)
	}

	switch f.Event {
	case EventConnected:
	case EventStart:
		if f.Start == nil {
			return nil, types.NewError(types.ErrProtocolViolation, "start frame missing start payload")
		}
	case EventMedia:
		if f.Media == nil {
			return nil, types.NewError(types.ErrProtocolViolation, "media frame missing media payload")
		}
	case EventMark:
		if f.Mark == nil {
			return nil, types.NewError(types.ErrProtocolViolation, "mark frame missing mark payload")
		}
	case EventStop:
	default:
		return nil, types.NewError(types.ErrProtocolViolation, fmt.Sprintf("unrecognized frame event %q", f.Event))
	}

	return &f, nil
}
