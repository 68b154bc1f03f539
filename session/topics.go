package session

import (
	"strings"
	"sync"
	"unicode"
)

// topicKeywords maps topic categories to the keywords that mark them in
// patient speech. Single words match whole words only ("cat" must not fire
// inside "medication"); multi-word phrases match as substrings.
var topicKeywords = map[string][]string{
	"family":    {"son", "daughter", "grandchild", "grandson", "granddaughter", "husband", "wife", "sister", "brother", "family"},
	"health":    {"doctor", "medication", "medicine", "pain", "sleep", "tired", "appointment", "hospital"},
	"food":      {"breakfast", "lunch", "dinner", "cook", "recipe", "eat", "meal"},
	"hobbies":   {"garden", "knit", "paint", "read", "puzzle", "crossword", "fishing"},
	"music":     {"music", "song", "sing", "radio", "piano"},
	"weather":   {"weather", "rain", "sunny", "snow", "cold", "warm outside"},
	"memories":  {"remember", "back then", "when i was", "years ago", "used to"},
	"travel":    {"trip", "travel", "vacation"},
	"pets":      {"dog", "cat", "bird", "pet"},
	"friends":   {"friend", "neighbor", "church", "club"},
	"television": {"television", "tv show", "movie", "watch"},
}

// TopicTracker accumulates the set of topics a patient has touched during a
// call. The set is append-only for the life of the call; it is owned by the
// call session and read by the admin surface, so access is locked.
type TopicTracker struct {
	mu      sync.Mutex
	ordered []string
	seen    map[string]bool
}

// NewTopicTracker returns an empty tracker.
func NewTopicTracker() *TopicTracker {
	return &TopicTracker{seen: make(map[string]bool)}
}

// Observe scans one patient line for topic keywords and records any topic
// not already discussed. It returns the newly matched topics, in match
// order.
func (t *TopicTracker) Observe(text string) []string {
	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		words[w] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var added []string
	for topic, keywords := range topicKeywords {
		if t.seen[topic] {
			continue
		}
		for _, kw := range keywords {
			matched := words[kw]
			if !matched && strings.ContainsRune(kw, ' ') {
				matched = strings.Contains(lower, kw)
			}
			if matched {
				t.seen[topic] = true
				t.ordered = append(t.ordered, topic)
				added = append(added, topic)
				break
			}
		}
	}
	return added
}

// Topics returns the discussed topics in the order they first appeared.
func (t *TopicTracker) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Summary renders a compact steering line for injection, or "" when nothing
// has been discussed yet.
func (t *TopicTracker) Summary() string {
	topics := t.Topics()
	if len(topics) == 0 {
		return ""
	}
	return "Topics already discussed this call: " + strings.Join(topics, ", ") +
		". Gently steer toward something new rather than repeating these."
}
