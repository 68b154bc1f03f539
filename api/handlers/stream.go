package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/session"
	"github.com/carelink-ai/callbridge/telephony"
)

// SessionFactory builds, registers, and starts a call session for a start
// frame. The returned session is already Active with its event loop
// running; the handler only feeds it telephony frames.
type SessionFactory func(ctx context.Context, start *telephony.StartPayload, out session.TelephonyWriter) (*session.CallSession, error)

// StreamHandler owns the telephony media-stream WebSocket endpoint. Each
// connection carries exactly one call: frames before the start frame are
// tolerated, and everything after it goes to the call's session.
type StreamHandler struct {
	newSession SessionFactory
	logger     *zap.Logger
}

// NewStreamHandler creates the media-stream endpoint handler.
func NewStreamHandler(factory SessionFactory, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		newSession: factory,
		logger:     logger.With(zap.String("component", "stream_handler")),
	}
}

// wsFrameWriter serializes outbound frame writes on one socket. The session
// event loop and the handler never write concurrently today, but the mutex
// keeps that a local fact instead of a protocol invariant.
type wsFrameWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsFrameWriter) WriteFrame(ctx context.Context, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Write(ctx, websocket.MessageText, data)
}

// HandleStream upgrades the connection and pumps frames into the call
// session until either side hangs up.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream handler exited")

	ctx := r.Context()
	writer := &wsFrameWriter{conn: conn}
	h.logger.Info("telephony stream opened", zap.String("remote", r.RemoteAddr))

	var sess *session.CallSession
	defer func() {
		if sess != nil {
			sess.End("telephony_disconnect")
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			h.logger.Info("telephony stream closed", zap.Error(err))
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		if sess == nil {
			sess = h.awaitStart(ctx, data, writer, conn)
			continue
		}
		sess.HandleFrame(ctx, data)

		if sess.State() == session.StateEnded {
			conn.Close(websocket.StatusNormalClosure, "call ended")
			sess = nil
			return
		}
	}
}

// awaitStart handles frames arriving before the session exists. Only a
// start frame creates one; anything else is logged and skipped.
func (h *StreamHandler) awaitStart(ctx context.Context, data []byte, writer *wsFrameWriter, conn *websocket.Conn) *session.CallSession {
	f, err := telephony.ParseFrame(data)
	if err != nil {
		h.logger.Warn("ignoring malformed frame before start", zap.Error(err))
		return nil
	}

	switch f.Event {
	case telephony.EventConnected:
		return nil
	case telephony.EventStart:
		sess, err := h.newSession(ctx, f.Start, writer)
		if err != nil {
			h.logger.Error("session start failed",
				zap.String("call_sid", f.Start.CallSID),
				zap.Error(err),
			)
			conn.Close(websocket.StatusInternalError, "session start failed")
			return nil
		}
		// Bind the relay to the stream identifier.
		sess.HandleFrame(ctx, data)

		// An admin force-end or agent failure must unblock the read loop.
		go func() {
			<-sess.Done()
			conn.Close(websocket.StatusNormalClosure, "call ended")
		}()
		return sess
	default:
		h.logger.Warn("frame before start", zap.String("event", f.Event))
		return nil
	}
}
