package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
	"github.com/hanifka/lentera/internal/audio"
)

type toolResult struct {
	invocationID string
	name         string
	payload      map[string]any
}

type fakeSession struct {
	mu          sync.Mutex
	events      chan repositories.ChannelEvent
	texts       []string
	textErr     error
	audioSends  int
	imageSends  int
	toolResults []toolResult
	closed      bool
	// leaveOpen keeps the event channel open across Close, simulating a
	// transport whose receive side outlives the local handle.
	leaveOpen bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan repositories.ChannelEvent, 16)}
}

func (f *fakeSession) SendAudio(data []byte, mimeType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioSends++
	return nil
}

func (f *fakeSession) SendImage(data []byte, mimeType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageSends++
	return nil
}

func (f *fakeSession) SendText(text string, turnComplete bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErr != nil {
		return f.textErr
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSession) SendToolResult(invocationID, name string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolResults = append(f.toolResults, toolResult{invocationID, name, payload})
	return nil
}

func (f *fakeSession) Events() <-chan repositories.ChannelEvent {
	return f.events
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		if !f.leaveOpen {
			close(f.events)
		}
	}
	return nil
}

func (f *fakeSession) emit(ev repositories.ChannelEvent) {
	f.events <- ev
}

func (f *fakeSession) toolResultCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.toolResults)
}

type fakeChannel struct {
	mu       sync.Mutex
	sess     *fakeSession
	err      error
	block    chan struct{}
	gotCfg   repositories.LiveConfig
	connects int
}

func (f *fakeChannel) Connect(ctx context.Context, cfg repositories.LiveConfig) (repositories.LiveSession, error) {
	f.mu.Lock()
	f.connects++
	f.gotCfg = cfg
	err := f.err
	block := f.block
	sess := f.sess
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

type fakeMic struct {
	blocks chan []int16
	mu     sync.Mutex
	closed bool
}

func (f *fakeMic) Blocks() <-chan []int16 { return f.blocks }

func (f *fakeMic) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.blocks)
	}
	return nil
}

func (f *fakeMic) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeCamera struct {
	id     string
	mu     sync.Mutex
	closed bool
}

func (f *fakeCamera) Still(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (f *fakeCamera) DeviceID() string { return f.id }

func (f *fakeCamera) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCamera) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeCapture struct {
	mu       sync.Mutex
	mic      *fakeMic
	micErr   error
	camErr   error
	acquired []*fakeCamera
}

func (f *fakeCapture) AcquireMicrophone(ctx context.Context, cfg repositories.AudioConfig) (repositories.MicrophoneStream, error) {
	if f.micErr != nil {
		return nil, f.micErr
	}
	return f.mic, nil
}

func (f *fakeCapture) AcquireCamera(ctx context.Context, deviceID string) (repositories.CameraStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.camErr != nil {
		return nil, f.camErr
	}
	cam := &fakeCamera{id: deviceID}
	f.acquired = append(f.acquired, cam)
	return cam, nil
}

func (f *fakeCapture) EnumerateCameras(ctx context.Context) ([]repositories.DeviceInfo, error) {
	return []repositories.DeviceInfo{{ID: "cam0", Label: "Front"}}, nil
}

type countingSink struct {
	mu      sync.Mutex
	played  int
	flushes int
}

func (s *countingSink) Play(chunk entities.AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played++
	return nil
}

func (s *countingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *countingSink) Close() error { return nil }

func (s *countingSink) flushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() Config {
	return Config{
		Model:             "gemini-2.0-flash-live-001",
		SampleRate:        16000,
		InboundSampleRate: 24000,
		CameraEnabled:     true,
		CameraDevice:      "cam0",
		TranscribeUser:    true,
		TranscribeAgent:   true,
	}
}

func newTestOrchestrator(t *testing.T, channel *fakeChannel, capture *fakeCapture) (*Orchestrator, *countingSink) {
	t.Helper()
	sink := &countingSink{}
	o, err := NewOrchestrator(testConfig(), Dependencies{
		Channel: channel,
		Capture: capture,
		Sink:    sink,
		Clock:   audio.NewClock(),
		Logger:  zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	return o, sink
}

func TestStartConnectsAndStopDisconnects(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16, 4)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if got := o.State(); got != StateDisconnected {
		t.Fatalf("initial state = %v, want %v", got, StateDisconnected)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if got := o.State(); got != StateConnected {
		t.Errorf("state after Start = %v, want %v", got, StateConnected)
	}
	if o.SessionID() == "" {
		t.Error("session id not assigned")
	}
	if channel.connects != 1 {
		t.Errorf("connect count = %d, want 1", channel.connects)
	}

	o.Stop()
	if got := o.State(); got != StateDisconnected {
		t.Errorf("state after Stop = %v, want %v", got, StateDisconnected)
	}
	if !capture.mic.isClosed() {
		t.Error("microphone not released on Stop")
	}
	if len(capture.acquired) != 1 || !capture.acquired[0].isClosed() {
		t.Error("camera not released on Stop")
	}
	if !sess.closed {
		t.Error("channel session not closed on Stop")
	}
}

func TestStartWhileActiveFails(t *testing.T) {
	channel := &fakeChannel{sess: newFakeSession()}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	if err := o.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start error = %v, want %v", err, ErrSessionActive)
	}
}

func TestStartMicrophoneFailureStaysDisconnected(t *testing.T) {
	channel := &fakeChannel{sess: newFakeSession()}
	capture := &fakeCapture{micErr: errors.New("device busy")}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded despite microphone failure")
	}
	if got := o.State(); got != StateDisconnected {
		t.Errorf("state = %v, want %v", got, StateDisconnected)
	}
	if channel.connects != 0 {
		t.Errorf("channel opened despite device failure, connects = %d", channel.connects)
	}
}

func TestStartConnectFailureReleasesDevices(t *testing.T) {
	mic := &fakeMic{blocks: make(chan []int16)}
	channel := &fakeChannel{err: errors.New("dial refused")}
	capture := &fakeCapture{mic: mic}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded despite connect failure")
	}
	if got := o.State(); got != StateError {
		t.Errorf("state = %v, want %v", got, StateError)
	}
	if !mic.isClosed() {
		t.Error("microphone leaked after connect failure")
	}
	if len(capture.acquired) != 1 || !capture.acquired[0].isClosed() {
		t.Error("camera leaked after connect failure")
	}
}

func TestStopDuringConnectingReleasesDevices(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess, block: make(chan struct{})}
	mic := &fakeMic{blocks: make(chan []int16)}
	capture := &fakeCapture{mic: mic}
	o, _ := newTestOrchestrator(t, channel, capture)

	startErr := make(chan error, 1)
	go func() { startErr <- o.Start(context.Background()) }()

	waitUntil(t, "dial to begin", func() bool {
		channel.mu.Lock()
		defer channel.mu.Unlock()
		return channel.connects == 1
	})
	o.Stop()
	close(channel.block)

	if err := <-startErr; err == nil {
		t.Fatal("Start succeeded despite Stop during connect")
	}
	if got := o.State(); got != StateDisconnected {
		t.Errorf("state = %v, want %v", got, StateDisconnected)
	}
	if !mic.isClosed() {
		t.Error("microphone leaked after Stop during connect")
	}
	if len(capture.acquired) != 1 || !capture.acquired[0].isClosed() {
		t.Error("camera leaked after Stop during connect")
	}
	if !sess.closed {
		t.Error("late-arriving channel session not closed")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	channel := &fakeChannel{sess: newFakeSession()}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	o.Stop()
	o.Stop()
	if got := o.State(); got != StateDisconnected {
		t.Errorf("state = %v, want %v", got, StateDisconnected)
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	o.Stop()
	o.Stop()
	if got := o.State(); got != StateDisconnected {
		t.Errorf("state after double Stop = %v, want %v", got, StateDisconnected)
	}
}

func TestTranscriptionEventsBuildTranscript(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	sess.emit(repositories.ChannelEvent{Kind: repositories.EventTranscription, Role: entities.RoleAgent, Text: "Let's look at "})
	sess.emit(repositories.ChannelEvent{Kind: repositories.EventTranscription, Role: entities.RoleAgent, Text: "fractions.", Final: true})
	sess.emit(repositories.ChannelEvent{Kind: repositories.EventTurnComplete})

	waitUntil(t, "transcript to settle", func() bool {
		msgs := o.Transcript()
		return len(msgs) == 1 && msgs[0].IsComplete
	})
	msgs := o.Transcript()
	if msgs[0].Text != "Let's look at fractions." {
		t.Errorf("merged text = %q", msgs[0].Text)
	}
	if msgs[0].Role != entities.RoleAgent {
		t.Errorf("role = %v, want %v", msgs[0].Role, entities.RoleAgent)
	}
}

func TestInterruptedFlushesPlayback(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, sink := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	before := sink.flushCount()
	sess.emit(repositories.ChannelEvent{Kind: repositories.EventInterrupted})
	waitUntil(t, "playback flush", func() bool { return sink.flushCount() > before })
}

func TestMalformedAudioIsDropped(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	// Odd byte count is not valid 16-bit PCM.
	sess.emit(repositories.ChannelEvent{Kind: repositories.EventAudioData, Audio: []byte{1, 2, 3}, SampleRate: 24000})
	sess.emit(repositories.ChannelEvent{Kind: repositories.EventTranscription, Role: entities.RoleAgent, Text: "still alive", Final: true})

	waitUntil(t, "event loop to survive malformed chunk", func() bool {
		return len(o.Transcript()) == 1
	})
	if o.Speaking() {
		t.Error("malformed chunk was scheduled for playback")
	}
}

func TestToolCallGetsExactlyOneResult(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	o.Tools().Register(repositories.ToolDeclaration{Name: "echo"}, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	sess.emit(repositories.ChannelEvent{Kind: repositories.EventToolCall, Call: &repositories.ToolInvocation{ID: "inv-1", Name: "echo"}})
	sess.emit(repositories.ChannelEvent{Kind: repositories.EventToolCall, Call: &repositories.ToolInvocation{ID: "inv-2", Name: "no_such_tool"}})

	waitUntil(t, "two tool results", func() bool { return sess.toolResultCount() == 2 })
	time.Sleep(20 * time.Millisecond)
	if got := sess.toolResultCount(); got != 2 {
		t.Fatalf("tool result count = %d, want exactly 2", got)
	}
}

func TestRemoteCloseDisconnects(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	sess.emit(repositories.ChannelEvent{Kind: repositories.EventClosed})

	waitUntil(t, "disconnect on remote close", func() bool { return o.State() == StateDisconnected })
	if !capture.mic.isClosed() {
		t.Error("microphone not released on remote close")
	}
}

func TestStaleEventsAfterStopAreIgnored(t *testing.T) {
	sess := newFakeSession()
	sess.leaveOpen = true
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	o.Stop()
	if got := o.State(); got != StateDisconnected {
		t.Fatalf("state after Stop = %v, want %v", got, StateDisconnected)
	}

	// Events the transport had in flight when the session ended.
	sess.events <- repositories.ChannelEvent{Kind: repositories.EventError, Err: errors.New("stream reset")}
	sess.events <- repositories.ChannelEvent{Kind: repositories.EventTranscription, Role: entities.RoleAgent, Text: "too late", Final: true}
	time.Sleep(50 * time.Millisecond)

	if got := o.State(); got != StateDisconnected {
		t.Errorf("stale error event changed state to %v, want %v", got, StateDisconnected)
	}
	if got := len(o.Transcript()); got != 0 {
		t.Errorf("stale transcription was processed, transcript length = %d", got)
	}
	close(sess.events)
}

func TestChannelErrorEntersErrorState(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	sess.emit(repositories.ChannelEvent{Kind: repositories.EventError, Err: errors.New("stream reset")})

	waitUntil(t, "error state", func() bool { return o.State() == StateError })

	// Recovery requires an explicit stop and a fresh start.
	o.Stop()
	if got := o.State(); got != StateDisconnected {
		t.Errorf("state after Stop = %v, want %v", got, StateDisconnected)
	}
}

func TestSendTextRequiresConnection(t *testing.T) {
	channel := &fakeChannel{sess: newFakeSession()}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.SendText("hello"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendText while disconnected = %v, want %v", err, ErrNotConnected)
	}
}

func TestSendTextUnsupportedIsReportedNoOp(t *testing.T) {
	sess := newFakeSession()
	sess.textErr = repositories.ErrTextUnsupported
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	if err := o.SendText("can you see this"); err != nil {
		t.Errorf("SendText on text-less transport = %v, want nil", err)
	}
	if len(o.Transcript()) != 0 {
		t.Error("dropped text turn was appended to transcript")
	}
}

func TestSendTextAppendsUserTurn(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	if err := o.SendText("what is a prime number"); err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	msgs := o.Transcript()
	if len(msgs) != 1 || msgs[0].Role != entities.RoleUser || !msgs[0].IsComplete {
		t.Fatalf("unexpected transcript after SendText: %+v", msgs)
	}
	if len(sess.texts) != 1 || sess.texts[0] != "what is a prime number" {
		t.Errorf("channel received texts %v", sess.texts)
	}
}

func TestSwitchCameraAcquiresBeforeRelease(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	if err := o.SwitchCamera(context.Background(), "cam1"); err != nil {
		t.Fatalf("SwitchCamera returned error: %v", err)
	}
	if len(capture.acquired) != 2 {
		t.Fatalf("acquired %d cameras, want 2", len(capture.acquired))
	}
	if !capture.acquired[0].isClosed() {
		t.Error("old camera still held after switch")
	}
	if capture.acquired[1].isClosed() {
		t.Error("new camera closed after switch")
	}
}

func TestSwitchCameraRollsBackOnFailure(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	capture := &fakeCapture{mic: &fakeMic{blocks: make(chan []int16)}}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	capture.mu.Lock()
	capture.camErr = errors.New("device unplugged")
	capture.mu.Unlock()

	if err := o.SwitchCamera(context.Background(), "cam1"); err == nil {
		t.Fatal("SwitchCamera succeeded despite acquisition failure")
	}
	if capture.acquired[0].isClosed() {
		t.Error("old camera released despite rollback")
	}
}

func TestMicrophoneBlocksAreForwarded(t *testing.T) {
	sess := newFakeSession()
	channel := &fakeChannel{sess: sess}
	mic := &fakeMic{blocks: make(chan []int16, 4)}
	capture := &fakeCapture{mic: mic}
	o, _ := newTestOrchestrator(t, channel, capture)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer o.Stop()

	mic.blocks <- []int16{0, 100, -100, 32000}
	waitUntil(t, "audio block forwarded", func() bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.audioSends == 1
	})
}
