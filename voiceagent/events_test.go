package voiceagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink-ai/callbridge/types"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "agent started speaking",
			raw:  `{"type":"AgentStartedSpeaking"}`,
			want: SpeakingStateEvent{Speaking: true},
		},
		{
			name: "agent stopped speaking",
			raw:  `{"type":"AgentStoppedSpeaking"}`,
			want: SpeakingStateEvent{Speaking: false},
		},
		{
			name: "user started speaking",
			raw:  `{"type":"UserStartedSpeaking"}`,
			want: UserSpeakingEvent{Speaking: true},
		},
		{
			name: "user stopped speaking",
			raw:  `{"type":"UserStoppedSpeaking"}`,
			want: UserSpeakingEvent{Speaking: false},
		},
		{
			name: "transcript",
			raw:  `{"type":"Transcript","role":"user","content":"hello there"}`,
			want: TranscriptEvent{Role: "user", Content: "hello there"},
		},
		{
			name: "function call request",
			raw:  `{"type":"FunctionCallRequest","function_call_id":"fc1","function_name":"get_patient_context","input":{"patient_id":"p1"}}`,
			want: FunctionCallEvent{ID: "fc1", Name: "get_patient_context", Params: map[string]any{"patient_id": "p1"}},
		},
		{
			name: "error with message",
			raw:  `{"type":"Error","message":"boom"}`,
			want: ErrorEvent{Message: "boom"},
		},
		{
			name: "error with description fallback",
			raw:  `{"type":"Error","description":"bad settings"}`,
			want: ErrorEvent{Message: "bad settings"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestParseEvent_Metadata(t *testing.T) {
	raw := `{"type":"Metadata","request_id":"r1"}`
	ev, err := ParseEvent([]byte(raw))
	require.NoError(t, err)
	meta, ok := ev.(MetadataEvent)
	require.True(t, ok)
	assert.JSONEq(t, raw, string(meta.Raw))
}

func TestParseEvent_Unrecognized(t *testing.T) {
	for _, raw := range []string{
		`{"type":"Warning","message":"odd"}`,
		`{"no_type_at_all":true}`,
		`garbage`,
	} {
		_, err := ParseEvent([]byte(raw))
		require.Error(t, err, raw)
		assert.Equal(t, types.ErrProtocolViolation, types.GetErrorCode(err))
	}
}
