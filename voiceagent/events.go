package voiceagent

import (
	"encoding/json"
	"fmt"

	"github.com/carelink-ai/callbridge/types"
)

// Inbound event type tags the agent protocol defines.
const (
	typeUserStartedSpeaking  = "UserStartedSpeaking"
	typeUserStoppedSpeaking  = "UserStoppedSpeaking"
	typeAgentStartedSpeaking = "AgentStartedSpeaking"
	typeAgentStoppedSpeaking = "AgentStoppedSpeaking"
	typeTranscript           = "Transcript"
	typeFunctionCallRequest  = "FunctionCallRequest"
	typeMetadata             = "Metadata"
	typeError                = "Error"
)

// Event is one inbound message from the voice agent, decoded at the
// connection boundary into a closed set of variants. Consumers switch over
// the concrete type instead of probing JSON keys.
type Event interface {
	isEvent()
}

// TranscriptEvent is a finalized utterance attributed to one speaker.
type TranscriptEvent struct {
	Role    string
	Content string
}

// AudioEvent carries synthesized agent audio to relay back to the caller.
type AudioEvent struct {
	Audio []byte
}

// SpeakingStateEvent reports the agent starting or stopping speech.
type SpeakingStateEvent struct {
	Speaking bool
}

// UserSpeakingEvent reports the caller starting or stopping speech.
type UserSpeakingEvent struct {
	Speaking bool
}

// FunctionCallEvent asks the bridge to execute a named function and return
// a result correlated by ID.
type FunctionCallEvent struct {
	ID     string
	Name   string
	Params map[string]any
}

// MetadataEvent carries opaque session metadata from the agent service.
type MetadataEvent struct {
	Raw json.RawMessage
}

// ErrorEvent reports a fatal agent-side error.
type ErrorEvent struct {
	Message string
}

func (TranscriptEvent) isEvent()    {}
func (AudioEvent) isEvent()         {}
func (SpeakingStateEvent) isEvent() {}
func (UserSpeakingEvent) isEvent()  {}
func (FunctionCallEvent) isEvent()  {}
func (MetadataEvent) isEvent()      {}
func (ErrorEvent) isEvent()         {}

// wireEvent is the superset of fields the agent puts on text frames.
type wireEvent struct {
	Type           string         `json:"type"`
	Role           string         `json:"role,omitempty"`
	Content        string         `json:"content,omitempty"`
	FunctionCallID string         `json:"function_call_id,omitempty"`
	FunctionName   string         `json:"function_name,omitempty"`
	Input          map[string]any `json:"input,omitempty"`
	Description    string         `json:"description,omitempty"`
	Message        string         `json:"message,omitempty"`
}

// ParseEvent decodes a text frame into a typed Event. Unrecognized types
// are protocol violations: the connection logs and skips them, they are
// never fatal.
func ParseEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, types.NewError(types.ErrProtocolViolation, "malformed agent event").WithCause(err)
	}

	switch w.Type {
	case typeUserStartedSpeaking:
		return UserSpeakingEvent{Speaking: true}, nil
	case typeUserStoppedSpeaking:
		return UserSpeakingEvent{Speaking: false}, nil
	case typeAgentStartedSpeaking:
		return SpeakingStateEvent{Speaking: true}, nil
	case typeAgentStoppedSpeaking:
		return SpeakingStateEvent{Speaking: false}, nil
	case typeTranscript:
		return TranscriptEvent{Role: w.Role, Content: w.Content}, nil
	case typeFunctionCallRequest:
		return FunctionCallEvent{ID: w.FunctionCallID, Name: w.FunctionName, Params: w.Input}, nil
	case typeMetadata:
		return MetadataEvent{Raw: json.RawMessage(data)}, nil
	case typeError:
		msg := w.Message
		if msg == "" {
			msg = w.Description
		}
		return ErrorEvent{Message: msg}, nil
	default:
		return nil, types.NewError(types.ErrProtocolViolation, fmt.Sprintf("unrecognized agent event type %q", w.Type))
	}
}
