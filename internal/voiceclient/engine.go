package voiceclient

import (
	"context"
	"errors"
	"sync"
)

// ErrCaptureUnsupported means the host environment lacks speech-capture
// capability. The state machine stays usable for text-only interaction.
var ErrCaptureUnsupported = errors.New("speech capture is not supported in this environment")

type CaptureEventType string

const (
	CaptureResult CaptureEventType = "result"
	CaptureEnded  CaptureEventType = "ended"
	CaptureError  CaptureEventType = "error"
)

// CaptureEvent is one observation from a capture engine. Result events
// carry the engine's accumulated transcript so far.
type CaptureEvent struct {
	Type CaptureEventType
	Text string
	Err  error
}

// CaptureEngine abstracts a speech recognition session. Engines may end
// sessions unilaterally; the state machine restarts them transparently
// while capture is still desired.
type CaptureEngine interface {
	Start(ctx context.Context) (<-chan CaptureEvent, error)
	Stop() error
}

// ManualEngine is a push-driven capture engine for clients that gather
// text from a terminal or a test script instead of a microphone.
type ManualEngine struct {
	mu      sync.Mutex
	events  chan CaptureEvent
	started bool
}

func NewManualEngine() *ManualEngine { return &ManualEngine{} }

func (e *ManualEngine) Start(_ context.Context) (<-chan CaptureEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = make(chan CaptureEvent, 16)
	e.started = true
	return e.events, nil
}

func (e *ManualEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false
	close(e.events)
	e.events = nil
	return nil
}

// Push feeds an accumulated transcript into the running session.
func (e *ManualEngine) Push(text string) {
	e.emit(CaptureEvent{Type: CaptureResult, Text: text})
}

// End simulates the engine ending the session on its own.
func (e *ManualEngine) End() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.started = false
	ch := e.events
	e.events = nil
	select {
	case ch <- CaptureEvent{Type: CaptureEnded}:
	default:
	}
	close(ch)
}

func (e *ManualEngine) emit(evt CaptureEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	select {
	case e.events <- evt:
	default:
	}
}

// UnsupportedEngine always reports ErrCaptureUnsupported.
type UnsupportedEngine struct{}

func (UnsupportedEngine) Start(context.Context) (<-chan CaptureEvent, error) {
	return nil, ErrCaptureUnsupported
}

func (UnsupportedEngine) Stop() error { return nil }
