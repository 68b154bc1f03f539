package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carelink-ai/callbridge/types"
)

// Registry tracks every concurrently active call session, keyed by call
// SID. It is the only structure shared across sessions; calls start and end
// independently, so all mutation is locked. Sessions remove themselves via
// the OnEnded hook, exactly once.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:   logger.With(zap.String("component", "session_registry")),
		sessions: make(map[string]*CallSession),
	}
}

// Add registers a session and wires its removal on teardown. A second
// session for the same call SID is rejected: one agent connection per call.
func (r *Registry) Add(s *CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sid := s.CallSID()
	if _, exists := r.sessions[sid]; exists {
		return types.NewError(types.ErrInvalidState, fmt.Sprintf("call %s already has an active session", sid)).WithCallSID(sid)
	}
	r.sessions[sid] = s
	s.OnEnded(r.remove)
	r.logger.Info("session registered", zap.String("call_sid", sid), zap.Int("active", len(r.sessions)))
	return nil
}

// Get looks up an active session.
func (r *Registry) Get(callSID string) (*CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callSID]
	return s, ok
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns snapshots of every active session.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// EndAll tears down every active session and waits for each to finish, or
// for the context to expire. Used at graceful shutdown.
func (r *Registry) EndAll(ctx context.Context, reason string) {
	r.mu.RLock()
	active := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		active = append(active, s)
	}
	r.mu.RUnlock()

	if len(active) == 0 {
		return
	}
	r.logger.Info("ending all sessions", zap.Int("count", len(active)), zap.String("reason", reason))

	var g errgroup.Group
	for _, s := range active {
		g.Go(func() error {
			s.End(reason)
			return nil
		})
	}

	finished := make(chan struct{})
	go func() {
		g.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		r.logger.Warn("shutdown deadline hit before all sessions ended")
	}
}

func (r *Registry) remove(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[callSID]; !ok {
		return
	}
	delete(r.sessions, callSID)
	r.logger.Info("session removed", zap.String("call_sid", callSID), zap.Int("active", len(r.sessions)))
}
