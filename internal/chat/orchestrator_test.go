package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/amoralabs/amora/internal/observability"
	"github.com/amoralabs/amora/internal/profile"
)

func testMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetrics("test_chat_" + time.Now().Format("150405") + "_" + fmt.Sprint(time.Now().UnixNano()))
}

func testPacing() Pacing {
	return Pacing{PerChar: time.Microsecond, Min: time.Millisecond, Max: 5 * time.Millisecond}
}

type stubGenerator struct {
	generate func(ctx context.Context, personaPrompt, contextText, userMessage string) (string, error)
}

func (g *stubGenerator) Generate(ctx context.Context, personaPrompt, contextText, userMessage string) (string, error) {
	return g.generate(ctx, personaPrompt, contextText, userMessage)
}

type stubSynthesizer struct {
	calls      int
	synthesize func(ctx context.Context, text string) (string, error)
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	s.calls++
	return s.synthesize(ctx, text)
}

func seedProfile(t *testing.T, store profile.Store) {
	t.Helper()
	_, err := store.Upsert(context.Background(), profile.Profile{
		UserID:      "user-1",
		Name:        "Luna",
		Personality: "Romantic",
		Age:         29,
		Gender:      "female",
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func TestExchangeCompletesWithAudio(t *testing.T) {
	store := profile.NewInMemoryStore()
	seedProfile(t, store)

	var seenPrompt, seenContext string
	gen := &stubGenerator{generate: func(_ context.Context, prompt, contextText, _ string) (string, error) {
		seenPrompt = prompt
		seenContext = contextText
		return "Hello, my love.", nil
	}}
	synth := &stubSynthesizer{synthesize: func(context.Context, string) (string, error) {
		return "/audio/spouse_response_1.mp3", nil
	}}

	o := NewOrchestrator(store, gen, synth, nil, testMetrics(t), testPacing(), 10, time.Second)

	res, err := o.Exchange(context.Background(), "user-1", "hi there")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if res.Reply != "Hello, my love." {
		t.Fatalf("reply = %q", res.Reply)
	}
	if res.AudioURL != "/audio/spouse_response_1.mp3" {
		t.Fatalf("audio url = %q", res.AudioURL)
	}
	if !strings.Contains(seenPrompt, "You are Luna, a 29 year old female with a romantic personality.") {
		t.Fatalf("persona prompt = %q", seenPrompt)
	}
	if seenContext != "" {
		t.Fatalf("context for fresh profile = %q, want empty", seenContext)
	}

	history, err := store.History(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].UserMessage != "hi there" || history[0].Reply != "Hello, my love." {
		t.Fatalf("persisted turn = %+v", history[0])
	}
}

func TestExchangeDegradesOnSynthesisFailure(t *testing.T) {
	store := profile.NewInMemoryStore()
	seedProfile(t, store)

	gen := &stubGenerator{generate: func(context.Context, string, string, string) (string, error) {
		return "Still here for you.", nil
	}}
	synth := &stubSynthesizer{synthesize: func(context.Context, string) (string, error) {
		return "", errors.New("tts unavailable")
	}}

	o := NewOrchestrator(store, gen, synth, nil, testMetrics(t), testPacing(), 10, time.Second)

	res, err := o.Exchange(context.Background(), "user-1", "how are you")
	if err != nil {
		t.Fatalf("Exchange() error = %v, want text-only success", err)
	}
	if res.Reply != "Still here for you." {
		t.Fatalf("reply = %q", res.Reply)
	}
	if res.AudioURL != "" {
		t.Fatalf("audio url = %q, want absent", res.AudioURL)
	}

	history, _ := store.History(context.Background(), "user-1", 0)
	if len(history) != 1 || history[0].Reply != "Still here for you." {
		t.Fatalf("turn not persisted with original reply: %+v", history)
	}
}

func TestExchangeFailsHardOnGenerationError(t *testing.T) {
	store := profile.NewInMemoryStore()
	seedProfile(t, store)

	gen := &stubGenerator{generate: func(context.Context, string, string, string) (string, error) {
		return "", errors.New("provider down")
	}}
	synth := &stubSynthesizer{synthesize: func(context.Context, string) (string, error) {
		return "/audio/x.mp3", nil
	}}

	o := NewOrchestrator(store, gen, synth, nil, testMetrics(t), testPacing(), 10, time.Second)

	_, err := o.Exchange(context.Background(), "user-1", "hello?")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("Exchange() error = %v, want ErrGenerationFailed", err)
	}
	if synth.calls != 0 {
		t.Fatalf("synthesizer called %d times after generation failure, want 0", synth.calls)
	}

	history, _ := store.History(context.Background(), "user-1", 0)
	if len(history) != 0 {
		t.Fatalf("history length = %d after failed generation, want 0", len(history))
	}
}

func TestExchangeRejectsMissingProfile(t *testing.T) {
	store := profile.NewInMemoryStore()

	gen := &stubGenerator{generate: func(context.Context, string, string, string) (string, error) {
		t.Fatalf("generator must not run for a missing profile")
		return "", nil
	}}

	o := NewOrchestrator(store, gen, nil, nil, testMetrics(t), testPacing(), 10, time.Second)

	_, err := o.Exchange(context.Background(), "nobody", "hi")
	if !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("Exchange() error = %v, want profile.ErrNotFound", err)
	}
}

func TestExchangeRejectsEmptyMessage(t *testing.T) {
	store := profile.NewInMemoryStore()
	seedProfile(t, store)

	o := NewOrchestrator(store, &stubGenerator{generate: func(context.Context, string, string, string) (string, error) {
		return "x", nil
	}}, nil, nil, testMetrics(t), testPacing(), 10, time.Second)

	if _, err := o.Exchange(context.Background(), "user-1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Exchange() error = %v, want ErrEmptyMessage", err)
	}
}

func TestExchangePublishesTurnEventBeforePacedRelease(t *testing.T) {
	store := profile.NewInMemoryStore()
	seedProfile(t, store)

	gen := &stubGenerator{generate: func(context.Context, string, string, string) (string, error) {
		return "On my way.", nil
	}}

	hub := NewHub()
	events, cancel := hub.Subscribe("user-1")
	defer cancel()

	// Long pacing floor: the event must be observable while the caller
	// is still waiting on the paced release.
	pacing := Pacing{PerChar: time.Millisecond, Min: 200 * time.Millisecond, Max: time.Second}
	o := NewOrchestrator(store, gen, nil, hub, testMetrics(t), pacing, 10, time.Second)

	done := make(chan *Result, 1)
	go func() {
		res, err := o.Exchange(context.Background(), "user-1", "come home")
		if err != nil {
			t.Errorf("Exchange() error = %v", err)
		}
		done <- res
	}()

	select {
	case evt := <-events:
		if evt.Reply != "On my way." {
			t.Fatalf("event reply = %q", evt.Reply)
		}
		select {
		case <-done:
			t.Fatalf("paced result released before or with the turn event wait window")
		default:
		}
	case <-time.After(150 * time.Millisecond):
		t.Fatalf("no turn event published before the pacing delay elapsed")
	}

	select {
	case res := <-done:
		if res == nil || res.Reply != "On my way." {
			t.Fatalf("paced result = %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatalf("paced result never released")
	}
}
