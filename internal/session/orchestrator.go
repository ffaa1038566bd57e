package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
	"github.com/hanifka/lentera/internal/audio"
	"github.com/hanifka/lentera/internal/insight"
	"github.com/hanifka/lentera/internal/media"
	"github.com/hanifka/lentera/internal/quality"
)

// State is the lifecycle of the remote session. Transitions are
// disconnected → connecting → connected → {disconnected | error}; error is
// terminal for the attempt and a fresh start is required afterwards.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

var (
	// ErrSessionActive is returned by Start while a session is connecting
	// or connected.
	ErrSessionActive = errors.New("session already active")
	// ErrNotConnected is returned by operations that require a connected
	// session.
	ErrNotConnected = errors.New("session is not connected")
)

// Publisher pushes session output across the rendering-layer boundary.
// All methods must be non-blocking for the session loop.
type Publisher interface {
	PublishStatus(state State, speaking bool)
	PublishTranscript(messages []entities.ChatMessage)
	PublishInsight(snapshot insight.Snapshot)
}

// Config holds the per-session connect surface.
type Config struct {
	Model             string
	SystemInstruction string
	VoiceName         string
	Language          string
	// SampleRate is the outbound capture rate (mono PCM).
	SampleRate int
	// InboundSampleRate is assumed for inbound audio whose mime carries
	// no rate.
	InboundSampleRate int
	CameraDevice      string
	CameraEnabled     bool
	TranscribeUser    bool
	TranscribeAgent   bool
	// TelemetryPollInterval paces the quality control loop.
	TelemetryPollInterval time.Duration
}

// Dependencies are the collaborators the orchestrator is wired with.
type Dependencies struct {
	Channel     repositories.RealtimeChannel
	Capture     repositories.MediaCapture
	Sink        audio.Sink
	Clock       audio.Clock
	Telemetry   repositories.NetworkTelemetry
	Transcriber repositories.Transcriber
	Publisher   Publisher
	Logger      *zap.Logger
}

// Orchestrator owns the live session: the connection state machine, the
// outbound capture cadence, inbound event dispatch, and all session-scoped
// mutable state. It is the single owner of the channel handle for the
// session's lifetime.
type Orchestrator struct {
	cfg       Config
	channel   repositories.RealtimeChannel
	capture   repositories.MediaCapture
	publisher Publisher
	logger    *zap.Logger

	encoder     *media.Encoder
	scheduler   *audio.Scheduler
	controller  *quality.Controller
	insights    *insight.Extractor
	tools       *ToolRegistry
	transcriber repositories.Transcriber

	cadence chan time.Duration

	mu         sync.Mutex
	state      State
	sessionID  string
	sess       repositories.LiveSession
	mic        repositories.MicrophoneStream
	cam        repositories.CameraStream
	stt        repositories.TranscriberStream
	transcript *entities.Transcript
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewOrchestrator wires an orchestrator. The playback scheduler, quality
// controller, insight extractor, and tool registry are owned by the
// orchestrator rather than ambient state.
func NewOrchestrator(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Channel == nil {
		return nil, errors.New("realtime channel is required")
	}
	if deps.Capture == nil {
		return nil, errors.New("media capture is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("audio sink is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = audio.NewClock()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.InboundSampleRate <= 0 {
		cfg.InboundSampleRate = 24000
	}
	if cfg.TelemetryPollInterval <= 0 {
		cfg.TelemetryPollInterval = 10 * time.Second
	}

	encoder, err := media.NewEncoder(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:         cfg,
		channel:     deps.Channel,
		capture:     deps.Capture,
		publisher:   deps.Publisher,
		logger:      deps.Logger,
		encoder:     encoder,
		tools:       NewToolRegistry(deps.Logger),
		transcriber: deps.Transcriber,
		cadence:     make(chan time.Duration, 1),
		state:       StateDisconnected,
		transcript:  entities.NewTranscript(),
	}
	o.scheduler = audio.NewScheduler(deps.Clock, deps.Sink, deps.Logger, o.speakingChanged)
	o.controller = quality.NewController(deps.Telemetry, quality.DefaultManualProfile, deps.Logger, o.qualityChanged)
	o.insights = insight.NewExtractor(deps.Logger, o.insightChanged)
	return o, nil
}

// Tools exposes the capability registry for registration before Start.
func (o *Orchestrator) Tools() *ToolRegistry {
	return o.tools
}

// RegisterDiagramTool registers the render_diagram capability backed by the
// external diagram collaborator.
func (o *Orchestrator) RegisterDiagramTool(renderer repositories.DiagramRenderer) {
	decl := repositories.ToolDeclaration{
		Name:        "render_diagram",
		Description: "Draw a diagram or shape on the student's board to illustrate the explanation.",
		Parameters: &repositories.Schema{
			Type: "object",
			Properties: map[string]*repositories.Schema{
				"kind":  {Type: "string", Description: "Diagram kind, e.g. line, circle, graph."},
				"title": {Type: "string"},
				"spec":  {Type: "object", Description: "Kind-specific drawing parameters."},
			},
			Required: []string{"kind"},
		},
	}
	o.tools.Register(decl, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		instruction := repositories.DiagramInstruction{}
		if kind, ok := args["kind"].(string); ok {
			instruction.Kind = kind
		}
		if title, ok := args["title"].(string); ok {
			instruction.Title = title
		}
		if spec, ok := args["spec"].(map[string]any); ok {
			instruction.Spec = spec
		}
		if err := renderer.Render(ctx, instruction); err != nil {
			return nil, fmt.Errorf("failed to render diagram: %w", err)
		}
		return map[string]any{"rendered": true}, nil
	})
}

// Start acquires capture devices, opens the remote channel, and arms the
// outbound pumps. Media begins flowing only once the channel reports open,
// never before. Fails while a session is already connecting or connected.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateConnecting || o.state == StateConnected {
		o.mu.Unlock()
		return ErrSessionActive
	}
	runCtx, cancel := context.WithCancel(context.Background())
	o.state = StateConnecting
	o.sessionID = uuid.NewString()
	o.transcript = entities.NewTranscript()
	o.cancel = cancel
	o.mu.Unlock()
	o.publishStatus()

	// Pumps from a previous session exit on their context; join them so two
	// sessions can never interleave their outbound streams.
	o.wg.Wait()

	// Device acquisition precedes the channel: device errors are reported
	// before anything is opened remotely.
	audioCfg := repositories.AudioConfig{
		SampleRate: o.cfg.SampleRate,
		Encoding:   "LINEAR16",
		Language:   o.cfg.Language,
	}
	mic, err := o.capture.AcquireMicrophone(runCtx, audioCfg)
	if err != nil {
		cancel()
		o.transitionTo(StateDisconnected)
		return fmt.Errorf("failed to acquire microphone: %w", err)
	}

	var cam repositories.CameraStream
	if o.cfg.CameraEnabled {
		cam, err = o.capture.AcquireCamera(runCtx, o.cfg.CameraDevice)
		if err != nil {
			mic.Close()
			cancel()
			o.transitionTo(StateDisconnected)
			return fmt.Errorf("failed to acquire camera: %w", err)
		}
	}

	sess, err := o.channel.Connect(runCtx, o.liveConfig())
	if err != nil {
		mic.Close()
		if cam != nil {
			cam.Close()
		}
		cancel()
		if runCtx.Err() != nil {
			// Stopped mid-connect; Stop already settled the state.
			return runCtx.Err()
		}
		o.transitionTo(StateError)
		return fmt.Errorf("failed to open realtime channel: %w", err)
	}

	var stt repositories.TranscriberStream
	if !o.cfg.TranscribeUser && o.transcriber != nil {
		stt, err = o.transcriber.Start(runCtx, audioCfg, o.localUserTranscription)
		if err != nil {
			o.logger.Warn("Local transcription unavailable, user turns will be untranscribed", zap.Error(err))
			stt = nil
		}
	}

	o.mu.Lock()
	if o.state != StateConnecting {
		// Stop raced the dial; tear the fresh handles down again.
		o.mu.Unlock()
		sess.Close()
		mic.Close()
		if cam != nil {
			cam.Close()
		}
		if stt != nil {
			stt.Close()
		}
		cancel()
		return ErrNotConnected
	}
	o.sess = sess
	o.mic = mic
	o.cam = cam
	o.stt = stt
	o.state = StateConnected
	o.mu.Unlock()

	o.logger.Info("Realtime session connected",
		zap.String("sessionID", o.SessionID()),
		zap.String("model", o.cfg.Model))
	o.publishStatus()

	o.wg.Add(2)
	go o.eventLoop(runCtx, sess)
	go o.audioPump(runCtx, mic, sess, stt)
	if cam != nil {
		o.wg.Add(1)
		go o.framePump(runCtx, sess)
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.controller.Run(runCtx, o.cfg.TelemetryPollInterval)
	}()
	return nil
}

// Stop is the single cancellation entry point. It is idempotent, safe from
// any state including mid-connect, and always settles on disconnected with
// devices released and playback flushed.
func (o *Orchestrator) Stop() {
	o.teardown(StateDisconnected, nil)
}

func (o *Orchestrator) fail(err error) {
	o.logger.Error("Realtime session failed", zap.Error(err))
	o.teardown(StateError, err)
}

func (o *Orchestrator) teardown(final State, cause error) {
	o.mu.Lock()
	if o.state == StateDisconnected && final == StateDisconnected {
		o.mu.Unlock()
		return
	}
	// The error state is only ever entered from a live attempt. Once a stop
	// has settled the state, a stale transport error changes nothing.
	if final == StateError && (o.state == StateDisconnected || o.state == StateError) {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	sess := o.sess
	mic := o.mic
	cam := o.cam
	stt := o.stt
	o.cancel = nil
	o.sess = nil
	o.mic = nil
	o.cam = nil
	o.stt = nil
	o.state = final
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			o.logger.Warn("Failed to close realtime channel", zap.Error(err))
		}
	}
	if mic != nil {
		mic.Close()
	}
	if cam != nil {
		cam.Close()
	}
	if stt != nil {
		stt.Close()
	}
	o.scheduler.Flush()
	o.insights.Stop()

	if cause == nil {
		o.logger.Info("Realtime session stopped", zap.String("sessionID", o.SessionID()))
	}
	o.publishStatus()
}

func (o *Orchestrator) liveConfig() repositories.LiveConfig {
	return repositories.LiveConfig{
		Model:             o.cfg.Model,
		SystemInstruction: o.cfg.SystemInstruction,
		VoiceName:         o.cfg.VoiceName,
		TranscribeUser:    o.cfg.TranscribeUser,
		TranscribeAgent:   o.cfg.TranscribeAgent,
		Tools:             o.tools.Declarations(),
	}
}

// SendText enqueues a completed user turn. Allowed only while connected.
// Transports without text capability make this a reported no-op.
func (o *Orchestrator) SendText(text string) error {
	o.mu.Lock()
	sess := o.sess
	state := o.state
	transcript := o.transcript
	o.mu.Unlock()

	if state != StateConnected || sess == nil {
		return ErrNotConnected
	}
	if err := sess.SendText(text, true); err != nil {
		if errors.Is(err, repositories.ErrTextUnsupported) {
			o.logger.Warn("Channel cannot carry text turns, dropping", zap.Int("chars", len(text)))
			return nil
		}
		return fmt.Errorf("failed to send text turn: %w", err)
	}
	transcript.Append(entities.RoleUser, text, true)
	o.publishTranscript(transcript)
	return nil
}

// SwitchCamera hot-swaps the camera while connected. The new device is
// acquired first; only then is the old stream released, and a failed
// acquisition rolls back to the old stream.
func (o *Orchestrator) SwitchCamera(ctx context.Context, deviceID string) error {
	o.mu.Lock()
	if o.state != StateConnected {
		o.mu.Unlock()
		return ErrNotConnected
	}
	o.mu.Unlock()

	newCam, err := o.capture.AcquireCamera(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to acquire camera %q: %w", deviceID, err)
	}

	o.mu.Lock()
	if o.state != StateConnected {
		o.mu.Unlock()
		newCam.Close()
		return ErrNotConnected
	}
	old := o.cam
	o.cam = newCam
	o.mu.Unlock()

	if old != nil {
		old.Close()
	}
	o.logger.Info("Camera switched", zap.String("deviceID", deviceID))
	return nil
}

// Cameras enumerates available camera devices.
func (o *Orchestrator) Cameras(ctx context.Context) ([]repositories.DeviceInfo, error) {
	return o.capture.EnumerateCameras(ctx)
}

// State returns the connection state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SessionID identifies the current (or most recent) session.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Speaking reports whether the agent is currently producing audio.
func (o *Orchestrator) Speaking() bool {
	return o.scheduler.Speaking()
}

// Transcript returns a snapshot of the message log.
func (o *Orchestrator) Transcript() []entities.ChatMessage {
	o.mu.Lock()
	transcript := o.transcript
	o.mu.Unlock()
	return transcript.Messages()
}

// Insights returns the current insight snapshot.
func (o *Orchestrator) Insights() insight.Snapshot {
	return o.insights.Snapshot()
}

// Quality returns the current outbound cadence.
func (o *Orchestrator) Quality() entities.QualityState {
	return o.controller.State()
}

// eventLoop consumes inbound events strictly in arrival order. Events still
// in flight when the session is torn down are drained without effect.
func (o *Orchestrator) eventLoop(ctx context.Context, sess repositories.LiveSession) {
	defer o.wg.Done()
	for ev := range sess.Events() {
		if ctx.Err() != nil {
			continue
		}
		o.handleEvent(ctx, ev, sess)
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev repositories.ChannelEvent, sess repositories.LiveSession) {
	switch ev.Kind {
	case repositories.EventOpened:
		o.logger.Debug("Channel reported open")

	case repositories.EventTranscription:
		o.mu.Lock()
		transcript := o.transcript
		o.mu.Unlock()
		transcript.Append(ev.Role, ev.Text, ev.Final)
		o.publishTranscript(transcript)
		if ev.Role == entities.RoleAgent {
			o.insights.Scan(transcript.LastText(entities.RoleAgent))
		}

	case repositories.EventTurnComplete:
		o.mu.Lock()
		transcript := o.transcript
		o.mu.Unlock()
		transcript.FinalizeOpen(entities.RoleAgent)
		o.publishTranscript(transcript)

	case repositories.EventAudioData:
		rate := ev.SampleRate
		if rate <= 0 {
			rate = o.cfg.InboundSampleRate
		}
		chunk, err := entities.NewAudioChunk(ev.Audio, rate, 1)
		if err != nil {
			// Malformed payloads are dropped; playback of subsequent
			// chunks continues unaffected.
			o.logger.Warn("Dropping malformed audio chunk",
				zap.Int("bytes", len(ev.Audio)),
				zap.Error(err))
			return
		}
		o.scheduler.Enqueue(chunk)

	case repositories.EventInterrupted:
		o.logger.Info("Agent interrupted, flushing playback")
		o.scheduler.Flush()

	case repositories.EventToolCall:
		call := ev.Call
		go o.tools.Dispatch(ctx, call, sess)

	case repositories.EventClosed:
		o.teardown(StateDisconnected, nil)

	case repositories.EventError:
		o.fail(ev.Err)
	}
}

// audioPump streams captured sample blocks to the channel. Blocks arriving
// while not connected are dropped; stale media has no realtime value.
func (o *Orchestrator) audioPump(ctx context.Context, mic repositories.MicrophoneStream, sess repositories.LiveSession, stt repositories.TranscriberStream) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-mic.Blocks():
			if !ok {
				return
			}
			if o.State() != StateConnected {
				continue
			}
			payload := o.encoder.EncodePCM(block)
			if err := sess.SendAudio(payload.Data, payload.MIMEType); err != nil {
				o.logger.Warn("Failed to send audio block", zap.Error(err))
				continue
			}
			if stt != nil {
				if err := stt.Write(payload.Data); err != nil {
					o.logger.Debug("Local transcription write failed", zap.Error(err))
				}
			}
		}
	}
}

// framePump captures and sends still frames at the controller's cadence.
// Quality changes restart the sampling interval without dropping the
// connection.
func (o *Orchestrator) framePump(ctx context.Context, sess repositories.LiveSession) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.controller.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case interval := <-o.cadence:
			ticker.Reset(interval)
		case <-ticker.C:
			if o.State() != StateConnected {
				continue
			}
			o.sendStill(ctx, sess)
		}
	}
}

func (o *Orchestrator) sendStill(ctx context.Context, sess repositories.LiveSession) {
	o.mu.Lock()
	cam := o.cam
	o.mu.Unlock()
	if cam == nil {
		return
	}

	frame, err := cam.Still(ctx)
	if err != nil {
		o.logger.Warn("Failed to capture still frame", zap.Error(err))
		return
	}
	payload, err := o.encoder.EncodeStill(frame, o.controller.State().Compression)
	if err != nil {
		o.logger.Warn("Failed to encode still frame", zap.Error(err))
		return
	}
	if err := sess.SendImage(payload.Data, payload.MIMEType); err != nil {
		o.logger.Warn("Failed to send still frame", zap.Error(err))
	}
}

func (o *Orchestrator) localUserTranscription(text string) {
	o.mu.Lock()
	transcript := o.transcript
	o.mu.Unlock()
	transcript.Append(entities.RoleUser, text, true)
	o.publishTranscript(transcript)
}

func (o *Orchestrator) qualityChanged(state entities.QualityState) {
	interval := o.controller.Interval()
	select {
	case o.cadence <- interval:
	default:
		// A pending restart is superseded by the newest interval.
		select {
		case <-o.cadence:
		default:
		}
		select {
		case o.cadence <- interval:
		default:
		}
	}
}

func (o *Orchestrator) speakingChanged(bool) {
	o.publishStatus()
}

func (o *Orchestrator) insightChanged(snapshot insight.Snapshot) {
	if o.publisher != nil {
		o.publisher.PublishInsight(snapshot)
	}
}

func (o *Orchestrator) publishStatus() {
	if o.publisher != nil {
		o.publisher.PublishStatus(o.State(), o.scheduler.Speaking())
	}
}

func (o *Orchestrator) publishTranscript(transcript *entities.Transcript) {
	if o.publisher != nil {
		o.publisher.PublishTranscript(transcript.Messages())
	}
}

func (o *Orchestrator) transitionTo(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	o.publishStatus()
}
