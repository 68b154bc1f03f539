package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/types"
)

// Relay translates between media-stream frames and raw audio bytes for one
// stream. Inbound frames are decoded in arrival order; outbound audio is
// wrapped in envelopes tagged with the stream identifier captured from the
// start frame. A malformed payload is dropped and logged — it never
// desynchronizes the stream identifier or stops the relay loop.
type Relay struct {
	logger *zap.Logger

	mu        sync.RWMutex
	streamSID string
}

// NewRelay creates a relay that is not yet bound to a stream.
func NewRelay(logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		logger: logger.With(zap.String("component", "media_relay")),
	}
}

// Bind captures the stream identifier from a start payload. Outbound
// encoding fails until Bind has been called.
func (r *Relay) Bind(start *StartPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamSID = start.StreamSID
	r.logger.Debug("relay bound to stream", zap.String("stream_sid", start.StreamSID))
}

// StreamSID returns the bound stream identifier, or "" before Bind.
func (r *Relay) StreamSID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streamSID
}

// Decode extracts raw audio bytes from a media frame. A malformed base64
// payload is logged and reported as a protocol violation so the caller can
// drop the frame and keep reading.
func (r *Relay) Decode(f *Frame) ([]byte, error) {
	if f.Event != EventMedia || f.Media == nil {
		return nil, types.NewError(types.ErrProtocolViolation, fmt.Sprintf("cannot decode audio from %q frame", f.Event))
	}

	audio, err := base64.StdEncoding.DecodeString(f.Media.Payload)
	if err != nil {
		r.logger.Warn("dropping media frame with malformed payload",
			zap.String("stream_sid", r.StreamSID()),
			zap.Error(err),
		)
		return nil, types.NewError(types.ErrProtocolViolation, "malformed base64 media payload").WithCause(err)
	}
	return audio, nil
}

// EncodeMedia wraps raw audio bytes in an outbound media envelope.
func (r *Relay) EncodeMedia(audio []byte) ([]byte, error) {
	sid := r.StreamSID()
	if sid == "" {
		return nil, types.NewError(types.ErrInvalidState, "relay not bound to a stream")
	}

	frame := Frame{
		Event:     EventMedia,
		StreamSID: sid,
		Media:     &MediaPayload{Payload: base64.StdEncoding.EncodeToString(audio)},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal media frame: %w", err)
	}
	return data, nil
}

// EncodeMark builds a mark frame. An empty name gets a generated one so the
// provider's echo can still be correlated.
func (r *Relay) EncodeMark(name string) ([]byte, error) {
	sid := r.StreamSID()
	if sid == "" {
		return nil, types.NewError(types.ErrInvalidState, "relay not bound to a stream")
	}
	if name == "" {
		name = uuid.NewString()
	}

	frame := Frame{
		Event:     EventMark,
		StreamSID: sid,
		Mark:      &MarkPayload{Name: name},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal mark frame: %w", err)
	}
	return data, nil
}

// EncodeClear builds a clear frame that flushes buffered outbound audio on
// the provider side (used when the agent is interrupted).
func (r *Relay) EncodeClear() ([]byte, error) {
	sid := r.StreamSID()
	if sid == "" {
		return nil, types.NewError(types.ErrInvalidState, "relay not bound to a stream")
	}

	frame := Frame{Event: EventClear, StreamSID: sid}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal clear frame: %w", err)
	}
	return data, nil
}
