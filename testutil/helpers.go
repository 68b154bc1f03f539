// Package testutil provides shared helpers for package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/carelink-ai/callbridge/types"
)

// TestContext returns a context bound to the test with a 30s timeout.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout returns a test context with a custom timeout.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns an already-cancelled context.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// Transcript builds a transcript from alternating speaker/text pairs.
// Timestamps increase one second per entry so ordering is stable.
func Transcript(pairs ...string) []types.TranscriptEntry {
	if len(pairs)%2 != 0 {
		panic("testutil.Transcript: pairs must be speaker/text pairs")
	}
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	entries := make([]types.TranscriptEntry, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		entries = append(entries, types.TranscriptEntry{
			Speaker:   pairs[i],
			Text:      pairs[i+1],
			Timestamp: base.Add(time.Duration(i/2) * time.Second),
		})
	}
	return entries
}

// Eventually polls cond until it returns true or the timeout expires.
func Eventually(t *testing.T, cond func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
