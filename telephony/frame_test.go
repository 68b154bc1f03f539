package telephony

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink-ai/callbridge/types"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantEvent string
		wantErr   bool
	}{
		{
			name:      "connected",
			raw:       `{"event":"connected","protocol":"Call","version":"1.0.0"}`,
			wantEvent: EventConnected,
		},
		{
			name: "start with custom parameters",
			raw: `{"event":"start","sequenceNumber":"1","streamSid":"MZ1",
				"start":{"streamSid":"MZ1","callSid":"CA1","tracks":["inbound"],
				"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1},
				"customParameters":{"patient_id":"p1"}}}`,
			wantEvent: EventStart,
		},
		{
			name:      "media",
			raw:       `{"event":"media","streamSid":"MZ1","media":{"track":"inbound","payload":"aGVsbG8="}}`,
			wantEvent: EventMedia,
		},
		{
			name:      "mark",
			raw:       `{"event":"mark","streamSid":"MZ1","mark":{"name":"greeting_done"}}`,
			wantEvent: EventMark,
		},
		{
			name:      "stop",
			raw:       `{"event":"stop","streamSid":"MZ1","stop":{"callSid":"CA1"}}`,
			wantEvent: EventStop,
		},
		{
			name:    "unknown event",
			raw:     `{"event":"dtmf","streamSid":"MZ1"}`,
			wantErr: true,
		},
		{
			name:    "start missing payload",
			raw:     `{"event":"start","streamSid":"MZ1"}`,
			wantErr: true,
		},
		{
			name:    "media missing payload",
			raw:     `{"event":"media","streamSid":"MZ1"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `not a frame`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFrame([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrProtocolViolation, types.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvent, f.Event)
		})
	}
}

func TestParseFrame_StartFields(t *testing.T) {
	raw := `{"event":"start","streamSid":"MZ1","start":{"streamSid":"MZ1","callSid":"CA1","customParameters":{"patient_id":"p1"}}}`

	f, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, f.Start)
	assert.Equal(t, "CA1", f.Start.CallSID)
	assert.Equal(t, "MZ1", f.Start.StreamSID)
	assert.Equal(t, "p1", f.Start.CustomParameters["patient_id"])
}
