package voiceclient

import (
	"context"
	"sync"
	"testing"
)

// countingEngine wraps ManualEngine to record session starts.
type countingEngine struct {
	*ManualEngine
	mu     sync.Mutex
	starts int
}

func newCountingEngine() *countingEngine {
	return &countingEngine{ManualEngine: NewManualEngine()}
}

func (e *countingEngine) Start(ctx context.Context) (<-chan CaptureEvent, error) {
	e.mu.Lock()
	e.starts++
	e.mu.Unlock()
	return e.ManualEngine.Start(ctx)
}

func (e *countingEngine) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

type machineFixture struct {
	engine  *countingEngine
	player  *fakePlayer
	machine *Machine

	mu      sync.Mutex
	sent    []string
	notices []string
}

func newMachineFixture() *machineFixture {
	f := &machineFixture{
		engine: newCountingEngine(),
		player: &fakePlayer{},
	}
	f.machine = NewMachine(f.engine, NewCoordinator(f.player), f.recordSend, f.recordNotice)
	return f
}

func (f *machineFixture) recordSend(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
}

func (f *machineFixture) recordNotice(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, msg)
}

func (f *machineFixture) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.sent...)
}

func TestStartCaptureTransitionsToListening(t *testing.T) {
	f := newMachineFixture()
	if err := f.machine.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	if got := f.machine.State(); got != StateListening {
		t.Fatalf("state = %v, want listening", got)
	}
	// Starting again while listening is a no-op, not a second session.
	if err := f.machine.StartCapture(context.Background()); err != nil {
		t.Fatalf("second StartCapture() error = %v", err)
	}
	if got := f.engine.startCount(); got != 1 {
		t.Fatalf("engine started %d times, want 1", got)
	}
}

func TestResultsAccumulateIntoTranscript(t *testing.T) {
	f := newMachineFixture()
	if err := f.machine.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}

	f.engine.Push("hello")
	waitFor(t, func() bool { return f.machine.Transcript() == "hello" }, "first result not applied")

	f.engine.Push("hello there")
	waitFor(t, func() bool { return f.machine.Transcript() == "hello there" }, "second result not applied")
}

func TestStopCaptureWithEmptyTranscriptReturnsToIdle(t *testing.T) {
	f := newMachineFixture()
	if err := f.machine.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}

	if got := f.machine.StopCapture(); got != StateIdle {
		t.Fatalf("StopCapture() = %v, want idle", got)
	}
	if got := len(f.sentMessages()); got != 0 {
		t.Fatalf("sent %d messages, want 0", got)
	}
}

func TestStopConfirmSendsFrozenTranscript(t *testing.T) {
	f := newMachineFixture()
	if err := f.machine.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	f.engine.Push("I missed you today")
	waitFor(t, func() bool { return f.machine.Transcript() != "" }, "result not applied")

	if got := f.machine.StopCapture(); got != StatePendingSend {
		t.Fatalf("StopCapture() = %v, want pending_send", got)
	}
	if !f.machine.ConfirmSend() {
		t.Fatalf("ConfirmSend() = false, want true")
	}
	if got := f.machine.State(); got != StateIdle {
		t.Fatalf("state after confirm = %v, want idle", got)
	}

	sent := f.sentMessages()
	if len(sent) != 1 || sent[0] != "I missed you today" {
		t.Fatalf("sent = %v, want the frozen transcript", sent)
	}
	// Nothing pending anymore.
	if f.machine.ConfirmSend() {
		t.Fatalf("second ConfirmSend() = true, want false")
	}
}

func TestCancelDiscardsPendingTranscript(t *testing.T) {
	f := newMachineFixture()
	if err := f.machine.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	f.engine.Push("never mind")
	waitFor(t, func() bool { return f.machine.Transcript() != "" }, "result not applied")
	f.machine.StopCapture()

	if !f.machine.Cancel() {
		t.Fatalf("Cancel() = false, want true")
	}
	if got := f.machine.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if got := f.machine.Transcript(); got != "" {
		t.Fatalf("transcript = %q, want empty", got)
	}
	if got := len(f.sentMessages()); got != 0 {
		t.Fatalf("sent %d messages, want 0", got)
	}
}

func TestAudioArrivedPlaysWhileIdle(t *testing.T) {
	f := newMachineFixture()
	if err := f.machine.AudioArrived(context.Background(), "/audio/reply.mp3"); err != nil {
		t.Fatalf("AudioArrived() error = %v", err)
	}
	if got := f.machine.State(); got != StateSpeaking {
		t.Fatalf("state = %v, want speaking", got)
	}

	f.player.playbacks[0].complete()
	waitFor(t, func() bool { return f.machine.State() == StateIdle }, "machine never returned to idle")
}

func TestAudioArrivedIgnoredWhileListening(t *testing.T) {
	f := newMachineFixture()
	if err := f.machine.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}

	if err := f.machine.AudioArrived(context.Background(), "/audio/reply.mp3"); err != nil {
		t.Fatalf("AudioArrived() error = %v", err)
	}
	if got := f.machine.State(); got != StateListening {
		t.Fatalf("state = %v, want listening", got)
	}
	if got := len(f.player.playbacks); got != 0 {
		t.Fatalf("playbacks started = %d, want 0", got)
	}
}

func TestBargeInStopsPlaybackBeforeListening(t *testing.T) {
	f := newMachineFixture()
	if err := f.machine.AudioArrived(context.Background(), "/audio/reply.mp3"); err != nil {
		t.Fatalf("AudioArrived() error = %v", err)
	}

	if err := f.machine.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	if got := f.machine.State(); got != StateListening {
		t.Fatalf("state = %v, want listening", got)
	}
	if !f.player.playbacks[0].wasStopped() {
		t.Fatalf("playback not stopped on barge-in")
	}
}

func TestNewerReplyReplacesCurrentPlayback(t *testing.T) {
	f := newMachineFixture()
	ctx := context.Background()
	if err := f.machine.AudioArrived(ctx, "/audio/first.mp3"); err != nil {
		t.Fatalf("AudioArrived(first) error = %v", err)
	}
	if err := f.machine.AudioArrived(ctx, "/audio/second.mp3"); err != nil {
		t.Fatalf("AudioArrived(second) error = %v", err)
	}

	if !f.player.playbacks[0].wasStopped() {
		t.Fatalf("first playback not stopped by second reply")
	}
	if got := f.machine.State(); got != StateSpeaking {
		t.Fatalf("state = %v, want speaking", got)
	}

	f.player.playbacks[1].complete()
	waitFor(t, func() bool { return f.machine.State() == StateIdle }, "machine never returned to idle")
}

func TestEngineEndRestartsSessionAndKeepsTranscript(t *testing.T) {
	f := newMachineFixture()
	if err := f.machine.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	f.engine.Push("partial thought")
	waitFor(t, func() bool { return f.machine.Transcript() != "" }, "result not applied")

	f.engine.End()
	waitFor(t, func() bool { return f.engine.startCount() == 2 }, "engine not restarted after unilateral end")

	if got := f.machine.State(); got != StateListening {
		t.Fatalf("state = %v, want listening", got)
	}
	if got := f.machine.Transcript(); got != "partial thought" {
		t.Fatalf("transcript = %q, want preserved across restart", got)
	}

	// The restarted session keeps accumulating.
	f.engine.Push("partial thought, finished")
	waitFor(t, func() bool { return f.machine.Transcript() == "partial thought, finished" }, "restarted session result not applied")
}

func TestUnsupportedEngineNoticesOnce(t *testing.T) {
	f := newMachineFixture()
	f.machine = NewMachine(UnsupportedEngine{}, NewCoordinator(f.player), f.recordSend, f.recordNotice)

	for i := 0; i < 3; i++ {
		if err := f.machine.StartCapture(context.Background()); err == nil {
			t.Fatalf("StartCapture() with unsupported engine returned nil error")
		}
	}
	if got := f.machine.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}

	f.mu.Lock()
	notices := len(f.notices)
	f.mu.Unlock()
	if notices != 1 {
		t.Fatalf("notice shown %d times, want exactly once", notices)
	}
}
