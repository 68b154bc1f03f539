package voiceagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/types"
)

// maxEventFrame bounds inbound frames; agent audio chunks stay well under it.
const maxEventFrame = 1 << 20

// Config configures one agent connection.
type Config struct {
	// URL is the agent service WebSocket endpoint.
	URL string `yaml:"url" json:"url"`

	// APIKey authenticates the connection. Connect fails fatally when empty.
	APIKey string `yaml:"api_key" json:"api_key"`

	// EventBuffer is the capacity of the inbound event channel.
	EventBuffer int `yaml:"event_buffer" json:"event_buffer"`
}

// Connection is a duplex link to the hosted voice agent for a single call.
// It is exclusively owned by one call session: only that session may send
// audio, injections, or function results through it.
//
// Writes share one mutex because the WebSocket does not support concurrent
// writers. The speaking flag is updated from SpeakingStateEvents before
// they are delivered, so a consumer reading the flag after an event always
// sees the state that event established.
type Connection struct {
	cfg    Config
	logger *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	speaking  atomic.Bool
	connected atomic.Bool

	events     chan Event
	readCancel context.CancelFunc
	closeOnce  sync.Once

	errMu    sync.Mutex
	fatalErr error
}

// New creates an unconnected agent connection.
func New(cfg Config, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	return &Connection{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "agent_connection")),
		events: make(chan Event, cfg.EventBuffer),
	}
}

// Connect establishes the WebSocket and sends the session settings as the
// required first message. Failure here is fatal for the call: it never
// becomes active.
func (c *Connection) Connect(ctx context.Context, settings Settings) error {
	if c.cfg.APIKey == "" {
		return types.NewError(types.ErrConnectionFailed, "agent API key not configured")
	}
	if c.cfg.URL == "" {
		return types.NewError(types.ErrConnectionFailed, "agent endpoint not configured")
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+c.cfg.APIKey)

	conn, _, err := websocket.Dial(ctx, c.cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return types.NewError(types.ErrConnectionFailed, "dial agent service").WithCause(err)
	}
	conn.SetReadLimit(maxEventFrame)
	c.conn = conn
	c.connected.Store(true)

	if err := c.writeJSON(ctx, settings); err != nil {
		c.connected.Store(false)
		conn.Close(websocket.StatusInternalError, "settings send failed")
		return types.NewError(types.ErrConnectionFailed, "send agent settings").WithCause(err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.readCancel = cancel
	go c.readLoop(readCtx)

	c.logger.Info("agent connection established", zap.String("url", c.cfg.URL))
	return nil
}

// Events returns the inbound event stream. Events are delivered in receipt
// order; the channel is closed when the connection ends.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// IsSpeaking reflects the most recent speaking-state event from the agent.
func (c *Connection) IsSpeaking() bool {
	return c.speaking.Load()
}

// IsConnected reports whether the connection is usable.
func (c *Connection) IsConnected() bool {
	return c.connected.Load()
}

// Err returns the fatal transport error that ended the connection, if any.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.fatalErr
}

// SendAudio forwards raw caller audio to the agent. When disconnected it is
// a no-op with a logged warning: dropping audio is preferable to stalling
// the relay loop.
func (c *Connection) SendAudio(ctx context.Context, audio []byte) error {
	if !c.connected.Load() {
		c.logger.Warn("dropping audio, agent not connected")
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageBinary, audio); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// Inject delivers an out-of-band context message steering the agent's next
// response. Callers must only invoke this while the agent is not speaking;
// the session's delivery policy enforces that.
func (c *Connection) Inject(ctx context.Context, content string) error {
	if !c.connected.Load() {
		return types.NewError(types.ErrInjectionRefused, "agent not connected")
	}
	return c.writeJSON(ctx, injectMessage{Type: "InjectAgentMessage", Content: content})
}

// SendFunctionResult returns a function-call outcome keyed by the
// originating request id.
func (c *Connection) SendFunctionResult(ctx context.Context, id, output string) error {
	if !c.connected.Load() {
		return types.NewError(types.ErrTransportFailed, "agent not connected")
	}
	return c.writeJSON(ctx, functionCallResponse{
		Type:           "FunctionCallResponse",
		FunctionCallID: id,
		Output:         output,
	})
}

// Close shuts the connection down. Safe to call multiple times.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		if c.readCancel != nil {
			c.readCancel()
		}
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "call ended")
		}
		c.logger.Debug("agent connection closed")
	})
	return nil
}

func (c *Connection) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal agent message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// readLoop pumps inbound frames into the event channel in receipt order.
// Binary frames are agent audio; text frames are JSON events. Unrecognized
// event types are logged and skipped.
func (c *Connection) readLoop(ctx context.Context) {
	defer close(c.events)

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			c.connected.Store(false)
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			c.errMu.Lock()
			c.fatalErr = types.NewError(types.ErrTransportFailed, "agent connection lost").WithCause(err)
			c.errMu.Unlock()
			c.deliver(ctx, ErrorEvent{Message: "agent connection lost: " + err.Error()})
			return
		}

		if typ == websocket.MessageBinary {
			c.deliver(ctx, AudioEvent{Audio: data})
			continue
		}

		ev, err := ParseEvent(data)
		if err != nil {
			c.logger.Warn("ignoring unrecognized agent event", zap.Error(err))
			continue
		}

		// The flag must be current before a consumer observes the event.
		if s, ok := ev.(SpeakingStateEvent); ok {
			c.speaking.Store(s.Speaking)
		}

		c.deliver(ctx, ev)
	}
}

func (c *Connection) deliver(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// IsNormalClosure reports whether err is an orderly close of the socket.
func IsNormalClosure(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.CloseStatus(err) == websocket.StatusNormalClosure
}
