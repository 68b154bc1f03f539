package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueue_LatestWins(t *testing.T) {
	q := NewQueue()
	assert.True(t, q.IsEmpty())

	q.Enqueue("a")
	q.Enqueue("b")

	msg, ok := q.Drain()
	require.True(t, ok)
	assert.Equal(t, "b", msg)

	_, ok = q.Drain()
	assert.False(t, ok)
	assert.True(t, q.IsEmpty())
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := NewQueue()
	msg, ok := q.Drain()
	assert.False(t, ok)
	assert.Empty(t, msg)
}

func TestQueue_LatestWinsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := NewQueue()
		n := rapid.IntRange(1, 50).Draw(t, "n")

		var last string
		for i := 0; i < n; i++ {
			last = fmt.Sprintf("msg-%d", i)
			q.Enqueue(last)
		}

		msg, ok := q.Drain()
		if !ok {
			t.Fatalf("queue empty after %d enqueues", n)
		}
		if msg != last {
			t.Fatalf("drained %q, want latest %q", msg, last)
		}
		if _, ok := q.Drain(); ok {
			t.Fatal("second drain returned a message")
		}
	})
}
