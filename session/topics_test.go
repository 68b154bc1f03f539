package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicTracker_Observe(t *testing.T) {
	tr := NewTopicTracker()

	added := tr.Observe("My daughter visited and we cooked dinner together")
	assert.ElementsMatch(t, []string{"family", "food"}, added)

	// Repeats of a discussed topic are not re-added.
	added = tr.Observe("my daughter called again")
	assert.Empty(t, added)

	added = tr.Observe("the doctor changed my medication")
	assert.Equal(t, []string{"health"}, added)

	assert.ElementsMatch(t, []string{"family", "food", "health"}, tr.Topics())
}

func TestTopicTracker_WholeWordsOnly(t *testing.T) {
	// Short keywords must not fire inside longer words.
	tr := NewTopicTracker()
	added := tr.Observe("I took my medication")
	assert.Equal(t, []string{"health"}, added, `"cat" inside "medication" is not pets`)

	tr = NewTopicTracker()
	assert.Empty(t, tr.Observe("that was a great catch"), `"eat" inside "great" is not food`)

	tr = NewTopicTracker()
	assert.Equal(t, []string{"pets"}, tr.Observe("the cat is asleep"))
}

func TestTopicTracker_PhrasesMatchAsSubstrings(t *testing.T) {
	tr := NewTopicTracker()
	added := tr.Observe("When I was young we danced every weekend")
	assert.Equal(t, []string{"memories"}, added)
}

func TestTopicTracker_NoMatch(t *testing.T) {
	tr := NewTopicTracker()
	assert.Empty(t, tr.Observe("hello there"))
	assert.Empty(t, tr.Topics())
	assert.Empty(t, tr.Summary())
}

func TestTopicTracker_Summary(t *testing.T) {
	tr := NewTopicTracker()
	tr.Observe("I was out in the garden all morning")

	s := tr.Summary()
	assert.Contains(t, s, "hobbies")
	assert.Contains(t, s, "already discussed")
}
