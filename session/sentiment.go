package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/sentiment"
)

// Scorer scores a window of transcript lines to a single sentiment label.
// sentiment.HTTPScorer satisfies it.
type Scorer interface {
	Score(ctx context.Context, lines []string) (string, error)
}

// Monitor runs at most one sentiment analysis at a time for its session.
// Triggering while a previous analysis is still pending cancels the previous
// one, and the new task waits for the old one to unwind before scoring, so
// results can never arrive out of trigger order. All failures are logged and
// swallowed: sentiment is best-effort and must never affect the call.
type Monitor struct {
	scorer Scorer
	logger *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	prevDone chan struct{}
	stopped  bool
}

// NewMonitor creates a monitor around the given scorer.
func NewMonitor(scorer Scorer, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		scorer: scorer,
		logger: logger.With(zap.String("component", "sentiment_monitor")),
	}
}

// Trigger starts a new background analysis of lines, first cancelling any
// analysis still in flight. onResult is called with the label on success; it
// is never called for cancelled or failed analyses.
func (m *Monitor) Trigger(ctx context.Context, lines []string, onResult func(label string)) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	prev := m.prevDone

	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.prevDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)

		// The previous task must fully unwind first so at most one
		// analysis runs and results arrive in trigger order.
		if prev != nil {
			<-prev
		}
		if taskCtx.Err() != nil {
			return
		}

		label, err := m.scorer.Score(taskCtx, lines)
		if err != nil {
			m.logger.Debug("sentiment analysis skipped", zap.Error(err))
			return
		}
		if taskCtx.Err() != nil {
			// Cancelled while the request was resolving; discard.
			return
		}
		onResult(label)
	}()
}

// Stop cancels any in-flight analysis and waits for it to unwind. Further
// triggers are ignored. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
	done := m.prevDone
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

var _ Scorer = (*sentiment.HTTPScorer)(nil)
