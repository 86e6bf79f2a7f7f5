package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amoralabs/amora/internal/observability"
	"github.com/amoralabs/amora/internal/persona"
	"github.com/amoralabs/amora/internal/profile"
)

// ErrEmptyMessage rejects exchanges with no user message.
var ErrEmptyMessage = errors.New("message must not be empty")

// ErrGenerationFailed marks a hard exchange failure: the text generation
// collaborator errored and no turn was persisted.
var ErrGenerationFailed = errors.New("reply generation failed")

// Result is what an exchange releases to the caller after pacing.
type Result struct {
	TurnID   string
	Reply    string
	AudioURL string
}

// Orchestrator drives a single chat exchange to completion: persona
// prompt + context window, generation, best-effort synthesis, turn
// persistence, paced release.
type Orchestrator struct {
	store            profile.Store
	generator        Generator
	synthesizer      Synthesizer
	hub              *Hub
	metrics          *observability.Metrics
	pacing           Pacing
	windowSize       int
	synthesisTimeout time.Duration
}

func NewOrchestrator(
	store profile.Store,
	generator Generator,
	synthesizer Synthesizer,
	hub *Hub,
	metrics *observability.Metrics,
	pacing Pacing,
	windowSize int,
	synthesisTimeout time.Duration,
) *Orchestrator {
	if hub == nil {
		hub = NewHub()
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if synthesisTimeout <= 0 {
		synthesisTimeout = 10 * time.Second
	}
	return &Orchestrator{
		store:            store,
		generator:        generator,
		synthesizer:      synthesizer,
		hub:              hub,
		metrics:          metrics,
		pacing:           pacing,
		windowSize:       windowSize,
		synthesisTimeout: synthesisTimeout,
	}
}

// Hub exposes the turn-event hub for websocket subscribers.
func (o *Orchestrator) Hub() *Hub { return o.hub }

// Exchange runs one user message through the pipeline. The persisted
// reply is always the generated text, whether or not synthesis
// produced an artifact. The result is released only after the pacing
// delay, but the turn is persisted and published before it.
func (o *Orchestrator) Exchange(ctx context.Context, userID, message string) (*Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	o.metrics.ActiveExchanges.Inc()
	defer o.metrics.ActiveExchanges.Dec()
	o.metrics.ExchangeEvents.WithLabelValues("started").Inc()
	exchangeStart := time.Now()

	prof, err := o.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	prompt := persona.Prompt(prof.Name, prof.Personality, prof.Age, prof.Gender)
	contextText := ContextWindow(prof.History, o.windowSize)

	genStart := time.Now()
	reply, err := o.generator.Generate(ctx, prompt, contextText, message)
	if err != nil {
		o.metrics.ExchangeEvents.WithLabelValues("generation_failed").Inc()
		o.metrics.ProviderErrors.WithLabelValues("generator", "generate").Inc()
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	o.metrics.ObserveGenerationLatency(time.Since(genStart))
	o.metrics.ObserveExchangeStage("generation", time.Since(genStart))

	synthStart := time.Now()
	audioURL := o.synthesize(ctx, reply)
	o.metrics.ObserveExchangeStage("synthesis", time.Since(synthStart))

	turn := profile.Turn{
		ID:          uuid.NewString(),
		UserMessage: message,
		Reply:       reply,
		Timestamp:   time.Now().UTC(),
	}
	if err := o.store.AppendTurn(ctx, userID, turn); err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	o.hub.Publish(TurnEvent{
		TurnID:    turn.ID,
		UserID:    userID,
		Reply:     reply,
		AudioURL:  audioURL,
		Timestamp: turn.Timestamp,
	})
	o.metrics.ExchangeEvents.WithLabelValues("completed").Inc()

	delay := o.pacing.Delay(reply)
	o.metrics.ObservePacingDelay(delay)
	o.metrics.ObserveExchangeStage("pacing", delay)
	if err := o.pacing.Wait(ctx, delay); err != nil {
		return nil, err
	}
	o.metrics.ObserveExchangeStage("exchange_total", time.Since(exchangeStart))

	return &Result{TurnID: turn.ID, Reply: reply, AudioURL: audioURL}, nil
}

// synthesize is best-effort: failures are logged and the exchange
// completes text-only.
func (o *Orchestrator) synthesize(ctx context.Context, reply string) string {
	if o.synthesizer == nil {
		return ""
	}
	sctx, cancel := context.WithTimeout(ctx, o.synthesisTimeout)
	defer cancel()

	audioURL, err := o.synthesizer.Synthesize(sctx, reply)
	if err != nil {
		o.metrics.ExchangeEvents.WithLabelValues("synthesis_failed").Inc()
		o.metrics.ProviderErrors.WithLabelValues("synthesizer", "synthesize").Inc()
		o.metrics.ObserveExchangeIndicator("synthesis_degraded")
		log.Printf("voice synthesis failed, continuing text-only: %v", err)
		return ""
	}
	return audioURL
}
