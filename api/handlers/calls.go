package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/session"
	"github.com/carelink-ai/callbridge/types"
)

// CallsHandler is the admin surface over active calls.
type CallsHandler struct {
	registry *session.Registry
	logger   *zap.Logger
}

// NewCallsHandler creates the admin calls handler.
func NewCallsHandler(registry *session.Registry, logger *zap.Logger) *CallsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallsHandler{
		registry: registry,
		logger:   logger.With(zap.String("component", "calls_handler")),
	}
}

// HandleList returns snapshots of all active calls.
func (h *CallsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{
		"calls": h.registry.List(),
		"count": h.registry.Len(),
	})
}

// HandleEnd force-ends one call. The session's normal teardown runs, so the
// conversation is still saved.
func (h *CallsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	sess, ok := h.registry.Get(sid)
	if !ok {
		WriteError(w, types.NewError(types.ErrCallNotFound, "no active call with that SID").WithCallSID(sid), h.logger)
		return
	}

	h.logger.Info("admin ending call", zap.String("call_sid", sid))
	sess.End("admin_request")
	<-sess.Done()

	WriteSuccess(w, map[string]any{"call_sid": sid, "state": sess.State().String()})
}
