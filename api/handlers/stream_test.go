package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink-ai/callbridge/pipeline"
	"github.com/carelink-ai/callbridge/session"
	"github.com/carelink-ai/callbridge/telephony"
	"github.com/carelink-ai/callbridge/testutil"
	"github.com/carelink-ai/callbridge/voiceagent"
)

// stubAgent satisfies session.AgentLink for endpoint tests.
type stubAgent struct {
	events chan voiceagent.Event

	mu    sync.Mutex
	audio [][]byte
}

func newStubAgent() *stubAgent {
	return &stubAgent{events: make(chan voiceagent.Event, 16)}
}

func (a *stubAgent) Connect(ctx context.Context, settings voiceagent.Settings) error { return nil }
func (a *stubAgent) Events() <-chan voiceagent.Event                                 { return a.events }
func (a *stubAgent) IsSpeaking() bool                                                { return false }
func (a *stubAgent) IsConnected() bool                                               { return true }
func (a *stubAgent) Err() error                                                      { return nil }
func (a *stubAgent) Inject(ctx context.Context, content string) error                { return nil }
func (a *stubAgent) SendFunctionResult(ctx context.Context, id, out string) error    { return nil }
func (a *stubAgent) Close() error                                                    { return nil }

func (a *stubAgent) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	a.audio = append(a.audio, cp)
	return nil
}

type stubSaver struct{}

func (stubSaver) ProcessConversation(ctx context.Context, req pipeline.ProcessRequest) (*pipeline.ProcessResult, error) {
	return &pipeline.ProcessResult{Success: true}, nil
}

type stubRunner struct{}

func (stubRunner) Execute(ctx context.Context, name string, params map[string]any) string {
	return `{"success": true}`
}

// streamFixture wires a stream handler whose factory builds real sessions
// over the stub agent.
type streamFixture struct {
	registry *session.Registry
	agent    *stubAgent
	server   *httptest.Server
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	fx := &streamFixture{
		registry: session.NewRegistry(nil),
		agent:    newStubAgent(),
	}

	factory := func(ctx context.Context, start *telephony.StartPayload, out session.TelephonyWriter) (*session.CallSession, error) {
		cfg := session.Config{
			CallSID:   start.CallSID,
			PatientID: start.CustomParameters["patient_id"],
		}
		s := session.New(cfg, fx.agent, telephony.NewRelay(nil), out, stubRunner{}, stubSaver{}, nil, nil, nil)
		if err := fx.registry.Add(s); err != nil {
			return nil, err
		}
		if err := s.Start(ctx); err != nil {
			return nil, err
		}
		go s.Run(context.Background())
		return s, nil
	}

	h := NewStreamHandler(factory, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/telephony", h.HandleStream)
	fx.server = httptest.NewServer(mux)
	t.Cleanup(fx.server.Close)
	return fx
}

func dialStream(t *testing.T, fx *streamFixture) *websocket.Conn {
	t.Helper()
	ctx := testutil.TestContext(t)
	url := "ws" + fx.server.URL[len("http"):] + "/ws/telephony"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestStreamHandler_CallLifecycle(t *testing.T) {
	fx := newStreamFixture(t)
	conn := dialStream(t, fx)
	ctx := testutil.TestContext(t)

	sendFrame(t, ctx, conn, map[string]any{"event": "connected"})
	sendFrame(t, ctx, conn, map[string]any{
		"event": "start",
		"start": map[string]any{
			"streamSid":        "MZ1",
			"callSid":          "CA1",
			"customParameters": map[string]string{"patient_id": "p1"},
		},
	})

	testutil.Eventually(t, func() bool { return fx.registry.Len() == 1 },
		5*time.Second, "session should be registered")
	sess, ok := fx.registry.Get("CA1")
	require.True(t, ok)
	assert.Equal(t, session.StateActive, sess.State())

	sendFrame(t, ctx, conn, map[string]any{
		"event": "media",
		"media": map[string]any{"payload": base64.StdEncoding.EncodeToString([]byte("hello"))},
	})
	testutil.Eventually(t, func() bool {
		fx.agent.mu.Lock()
		defer fx.agent.mu.Unlock()
		return len(fx.agent.audio) == 1
	}, 5*time.Second, "audio should reach the agent")

	sendFrame(t, ctx, conn, map[string]any{"event": "stop"})
	testutil.Eventually(t, func() bool { return fx.registry.Len() == 0 },
		5*time.Second, "session should be removed after stop")
	assert.Equal(t, session.StateEnded, sess.State())
}

func TestStreamHandler_AgentAudioFlowsBack(t *testing.T) {
	fx := newStreamFixture(t)
	conn := dialStream(t, fx)
	ctx := testutil.TestContext(t)

	sendFrame(t, ctx, conn, map[string]any{
		"event": "start",
		"start": map[string]any{"streamSid": "MZ1", "callSid": "CA1"},
	})
	testutil.Eventually(t, func() bool { return fx.registry.Len() == 1 },
		5*time.Second, "session registered")

	fx.agent.events <- voiceagent.AudioEvent{Audio: []byte("agent speech")}

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)

	var frame telephony.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, telephony.EventMedia, frame.Event)
	assert.Equal(t, "MZ1", frame.StreamSID)
	decoded, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("agent speech"), decoded)
}

func TestStreamHandler_DisconnectEndsSession(t *testing.T) {
	fx := newStreamFixture(t)
	conn := dialStream(t, fx)
	ctx := testutil.TestContext(t)

	sendFrame(t, ctx, conn, map[string]any{
		"event": "start",
		"start": map[string]any{"streamSid": "MZ1", "callSid": "CA1"},
	})
	testutil.Eventually(t, func() bool { return fx.registry.Len() == 1 },
		5*time.Second, "session registered")

	conn.Close(websocket.StatusGoingAway, "caller dropped")

	testutil.Eventually(t, func() bool { return fx.registry.Len() == 0 },
		5*time.Second, "session should end when the stream drops")
}

func TestStreamHandler_MalformedPreStartFramesIgnored(t *testing.T) {
	fx := newStreamFixture(t)
	conn := dialStream(t, fx)
	ctx := testutil.TestContext(t)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	sendFrame(t, ctx, conn, map[string]any{"event": "media", "media": map[string]any{"payload": ""}})
	sendFrame(t, ctx, conn, map[string]any{
		"event": "start",
		"start": map[string]any{"streamSid": "MZ1", "callSid": "CA1"},
	})

	testutil.Eventually(t, func() bool { return fx.registry.Len() == 1 },
		5*time.Second, "start should still create the session")
}
