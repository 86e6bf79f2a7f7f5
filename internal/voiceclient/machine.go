package voiceclient

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// State is the single enumerated voice interaction state. The machine
// is never in more than one of capture/playback at a time; starting
// either first terminates the other.
type State int

const (
	StateIdle State = iota
	StateListening
	StatePendingSend
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StatePendingSend:
		return "pending_send"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// SendFunc receives the confirmed transcript as the outgoing user message.
type SendFunc func(transcript string)

// NoticeFunc surfaces a one-time user-visible notice (e.g. capture
// unsupported).
type NoticeFunc func(message string)

// Machine governs capture, transcription buffering, send/cancel,
// barge-in and playback for one voice session. All transitions happen
// through its methods; invalid combinations are unrepresentable.
type Machine struct {
	engine      CaptureEngine
	coordinator *Coordinator
	send        SendFunc
	notice      NoticeFunc

	mu         sync.Mutex
	state      State
	transcript string
	desired    bool
	captureGen int
	playGen    int

	unsupportedOnce sync.Once
}

func NewMachine(engine CaptureEngine, coordinator *Coordinator, send SendFunc, notice NoticeFunc) *Machine {
	return &Machine{
		engine:      engine,
		coordinator: coordinator,
		send:        send,
		notice:      notice,
		state:       StateIdle,
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Transcript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript
}

// StartCapture begins listening. If audio is playing it is stopped
// first: barge-in takes priority over speech.
func (m *Machine) StartCapture(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateListening:
		m.mu.Unlock()
		return nil
	case StateSpeaking:
		m.coordinator.Stop()
	}
	m.transcript = ""
	m.desired = true
	m.captureGen++
	gen := m.captureGen
	m.mu.Unlock()

	events, err := m.engine.Start(ctx)
	if err != nil {
		m.mu.Lock()
		m.desired = false
		m.state = StateIdle
		m.mu.Unlock()
		if errors.Is(err, ErrCaptureUnsupported) {
			m.noticeUnsupported()
		}
		return err
	}

	m.mu.Lock()
	m.state = StateListening
	m.mu.Unlock()

	go m.pump(ctx, gen, events)
	return nil
}

// StopCapture freezes the transcript. An empty transcript returns to
// Idle with no further effect; otherwise the machine waits for an
// explicit confirm or cancel.
func (m *Machine) StopCapture() State {
	m.mu.Lock()
	if m.state != StateListening {
		st := m.state
		m.mu.Unlock()
		return st
	}
	m.desired = false
	m.captureGen++
	if strings.TrimSpace(m.transcript) == "" {
		m.transcript = ""
		m.state = StateIdle
	} else {
		m.state = StatePendingSend
	}
	st := m.state
	m.mu.Unlock()

	_ = m.engine.Stop()
	return st
}

// ConfirmSend hands the frozen transcript to the send func and resets
// to Idle. Returns false when there is nothing pending.
func (m *Machine) ConfirmSend() bool {
	m.mu.Lock()
	if m.state != StatePendingSend {
		m.mu.Unlock()
		return false
	}
	text := m.transcript
	m.transcript = ""
	m.state = StateIdle
	send := m.send
	m.mu.Unlock()

	if send != nil {
		send(text)
	}
	return true
}

// Cancel discards a pending transcript with no network effect.
func (m *Machine) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePendingSend {
		return false
	}
	m.transcript = ""
	m.state = StateIdle
	return true
}

// AudioArrived starts playback of a reply artifact. Playback begins
// only when no capture is in progress; while Speaking, a newer artifact
// replaces the current one (the coordinator stops the old handle).
func (m *Machine) AudioArrived(ctx context.Context, artifactURL string) error {
	m.mu.Lock()
	if m.state == StateListening || m.state == StatePendingSend {
		m.mu.Unlock()
		return nil
	}
	m.state = StateSpeaking
	m.playGen++
	gen := m.playGen
	m.mu.Unlock()

	done, err := m.coordinator.Play(ctx, artifactURL)
	if err != nil {
		m.mu.Lock()
		if m.playGen == gen && m.state == StateSpeaking {
			m.state = StateIdle
		}
		m.mu.Unlock()
		return err
	}

	go func() {
		// Completion and error both resolve to "not speaking".
		<-done
		m.mu.Lock()
		if m.playGen == gen && m.state == StateSpeaking {
			m.state = StateIdle
		}
		m.mu.Unlock()
	}()
	return nil
}

// pump feeds engine events into transitions until the session ends or
// its generation is invalidated.
func (m *Machine) pump(ctx context.Context, gen int, events <-chan CaptureEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				m.engineEnded(ctx, gen)
				return
			}
			switch evt.Type {
			case CaptureResult:
				m.engineResult(gen, evt.Text)
			case CaptureEnded, CaptureError:
				m.engineEnded(ctx, gen)
				return
			}
		}
	}
}

func (m *Machine) engineResult(gen int, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.captureGen || m.state != StateListening {
		return
	}
	m.transcript = text
}

// engineEnded handles a session the engine closed on its own.
// Recognition engines may end sessions unilaterally; restarting is
// required to preserve continuous capture while it is still desired.
func (m *Machine) engineEnded(ctx context.Context, gen int) {
	m.mu.Lock()
	if gen != m.captureGen || m.state != StateListening || !m.desired {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	events, err := m.engine.Start(ctx)
	if err != nil {
		m.mu.Lock()
		if gen == m.captureGen && m.state == StateListening {
			m.desired = false
			m.state = StateIdle
		}
		m.mu.Unlock()
		return
	}
	go m.pump(ctx, gen, events)
}

func (m *Machine) noticeUnsupported() {
	m.unsupportedOnce.Do(func() {
		if m.notice != nil {
			m.notice("Voice capture is not available here; you can keep chatting by text.")
		}
	})
}
