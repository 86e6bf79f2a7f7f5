package chat

import "context"

// Generator produces the companion's text reply for one exchange. A
// failure here fails the whole exchange and persists nothing.
type Generator interface {
	Generate(ctx context.Context, personaPrompt, contextText, userMessage string) (string, error)
}

// Synthesizer renders reply text as a retrievable audio artifact and
// returns its public URL. Synthesis is best-effort: an error or an
// empty URL completes the exchange text-only.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}
