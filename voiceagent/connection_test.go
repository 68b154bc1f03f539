package voiceagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink-ai/callbridge/types"
)

// fakeAgent runs a scripted agent service: it accepts one connection,
// verifies the settings handshake, then runs script against the socket.
func fakeAgent(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, websocket.MessageText, typ)

		var settings Settings
		require.NoError(t, json.Unmarshal(data, &settings))
		assert.Equal(t, "Settings", settings.Type)
		assert.Equal(t, "mulaw", settings.Audio.Input.Encoding)

		if script != nil {
			script(ctx, conn)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) Config {
	return Config{URL: url, APIKey: "test-key"}
}

func TestConnection_Connect_MissingCredentials(t *testing.T) {
	c := New(Config{URL: "ws://localhost:0"}, nil)
	err := c.Connect(context.Background(), NewSettings("inst", "", nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrConnectionFailed, types.GetErrorCode(err))
	assert.True(t, types.IsFatal(err))
}

func TestConnection_Connect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c := New(Config{URL: "ws://127.0.0.1:1", APIKey: "k"}, nil)
	err := c.Connect(ctx, NewSettings("inst", "", nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrConnectionFailed, types.GetErrorCode(err))
	assert.False(t, c.IsConnected())
}

func TestConnection_EventOrderAndSpeakingFlag(t *testing.T) {
	srv := fakeAgent(t, func(ctx context.Context, conn *websocket.Conn) {
		writeText := func(s string) {
			require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(s)))
		}
		writeText(`{"type":"AgentStartedSpeaking"}`)
		require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}))
		writeText(`{"type":"Transcript","role":"assistant","content":"hi"}`)
		writeText(`{"type":"SomethingNew"}`) // must be skipped, not fatal
		writeText(`{"type":"AgentStoppedSpeaking"}`)
		conn.Close(websocket.StatusNormalClosure, "done")
	})

	c := New(testConfig(srv.URL), nil)
	require.NoError(t, c.Connect(context.Background(), NewSettings("inst", "hello", nil)))
	defer c.Close()

	var got []Event
	for ev := range c.Events() {
		got = append(got, ev)
	}

	require.Len(t, got, 4)
	assert.Equal(t, SpeakingStateEvent{Speaking: true}, got[0])
	assert.Equal(t, AudioEvent{Audio: []byte{1, 2, 3}}, got[1])
	assert.Equal(t, TranscriptEvent{Role: "assistant", Content: "hi"}, got[2])
	assert.Equal(t, SpeakingStateEvent{Speaking: false}, got[3])

	// Last speaking-state event wins.
	assert.False(t, c.IsSpeaking())
	assert.NoError(t, c.Err())
}

func TestConnection_SendAudio_NotConnected(t *testing.T) {
	c := New(Config{URL: "ws://localhost:0", APIKey: "k"}, nil)
	// No connection established: must be a logged no-op, not an error.
	assert.NoError(t, c.SendAudio(context.Background(), []byte("audio")))
}

func TestConnection_Inject_NotConnected(t *testing.T) {
	c := New(Config{URL: "ws://localhost:0", APIKey: "k"}, nil)
	err := c.Inject(context.Background(), "context update")
	require.Error(t, err)
	assert.Equal(t, types.ErrInjectionRefused, types.GetErrorCode(err))
}

func TestConnection_SendsReachAgent(t *testing.T) {
	type received struct {
		typ  websocket.MessageType
		data []byte
	}
	recvCh := make(chan received, 8)

	srv := fakeAgent(t, func(ctx context.Context, conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			recvCh <- received{typ, data}
		}
		conn.Close(websocket.StatusNormalClosure, "done")
	})

	ctx := context.Background()
	c := New(testConfig(srv.URL), nil)
	require.NoError(t, c.Connect(ctx, NewSettings("inst", "", nil)))
	defer c.Close()

	require.NoError(t, c.SendAudio(ctx, []byte{9, 9}))
	require.NoError(t, c.Inject(ctx, "gentle tone please"))
	require.NoError(t, c.SendFunctionResult(ctx, "fc1", `{"success":true}`))

	audio := <-recvCh
	assert.Equal(t, websocket.MessageBinary, audio.typ)
	assert.Equal(t, []byte{9, 9}, audio.data)

	inject := <-recvCh
	assert.JSONEq(t, `{"type":"InjectAgentMessage","content":"gentle tone please"}`, string(inject.data))

	result := <-recvCh
	assert.JSONEq(t, `{"type":"FunctionCallResponse","function_call_id":"fc1","output":"{\"success\":true}"}`, string(result.data))
}

func TestConnection_TransportFailureSurfacesError(t *testing.T) {
	srv := fakeAgent(t, func(ctx context.Context, conn *websocket.Conn) {
		conn.Close(websocket.StatusInternalError, "crash")
	})

	c := New(testConfig(srv.URL), nil)
	require.NoError(t, c.Connect(context.Background(), NewSettings("inst", "", nil)))
	defer c.Close()

	var last Event
	for ev := range c.Events() {
		last = ev
	}

	_, ok := last.(ErrorEvent)
	assert.True(t, ok, "expected trailing ErrorEvent, got %T", last)
	require.Error(t, c.Err())
	assert.Equal(t, types.ErrTransportFailed, types.GetErrorCode(c.Err()))
	assert.False(t, c.IsConnected())
}

func TestConnection_Close_Idempotent(t *testing.T) {
	srv := fakeAgent(t, func(ctx context.Context, conn *websocket.Conn) {
		conn.Read(ctx) // wait for client close
	})

	c := New(testConfig(srv.URL), nil)
	require.NoError(t, c.Connect(context.Background(), NewSettings("inst", "", nil)))

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}
