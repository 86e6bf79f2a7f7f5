package chat

import (
	"strings"

	"github.com/amoralabs/amora/internal/profile"
)

// DefaultWindowSize is the number of most recent turns included in the
// generator prompt context.
const DefaultWindowSize = 10

// ContextWindow formats the last k turns as alternating User/Companion
// lines, oldest first. It is a derived view: re-computed per request,
// never persisted, and deterministic for a given history.
func ContextWindow(history []profile.Turn, k int) string {
	if k <= 0 {
		k = DefaultWindowSize
	}
	if len(history) > k {
		history = history[len(history)-k:]
	}

	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("User: ")
		b.WriteString(t.UserMessage)
		b.WriteString("\nCompanion: ")
		b.WriteString(t.Reply)
	}
	return b.String()
}
