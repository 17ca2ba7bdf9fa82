// Package session owns the lifecycle of one live voice conversation: device
// acquisition, the service connection, capture, playback, transcripts and
// screen sharing.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/voice-console/internal/audio"
	"github.com/lexiqai/voice-console/internal/capture"
	"github.com/lexiqai/voice-console/internal/conversation"
	"github.com/lexiqai/voice-console/internal/live"
	"github.com/lexiqai/voice-console/internal/observability"
	"github.com/lexiqai/voice-console/internal/playback"
	"github.com/lexiqai/voice-console/internal/resilience"
	"github.com/lexiqai/voice-console/internal/screen"
	"github.com/lexiqai/voice-console/internal/tools"
	"github.com/lexiqai/voice-console/internal/transcript"
)

// PrimingWindow is how many past messages are replayed on connect.
const PrimingWindow = 20

// Config tunes a Controller.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	ThinkingBudget    int

	FrameSize        int
	PlaybackPeriod   time.Duration
	VoiceSwitchPause time.Duration

	ScreenInterval time.Duration
	ScreenWidth    int
	ScreenQuality  int

	BreakerMaxFailures int
	BreakerReset       time.Duration
	Retry              *resilience.RetryConfig
}

// Deps are the external collaborators of a Controller. Screen may be nil.
type Deps struct {
	Dialer  live.Dialer
	Mic     capture.Device
	Speaker playback.Output
	Screen  screen.Source
}

// connection is everything owned by one connect attempt.
type connection struct {
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	handle   live.Session
	sched    *playback.Scheduler
	player   *playback.Player
	pipeline *capture.Pipeline
	metrics  *observability.Metrics
	logger   zerolog.Logger
	closing  atomic.Bool
	recvDone chan struct{}
}

// Controller is the connection state machine.
type Controller struct {
	cfg      Config
	deps     Deps
	listener Listener
	logger   zerolog.Logger

	acc      *transcript.Accumulator
	tools    *tools.Registry
	capTap   *audio.Analyser
	playTap  *audio.Analyser
	activity *audio.Activity
	muted    atomic.Bool

	mu      sync.Mutex
	state   State
	gen     uint64
	conn    *connection
	sampler *screen.Sampler
	voice   string
}

// NewController creates a disconnected controller.
func NewController(cfg Config, deps Deps, listener Listener, logger zerolog.Logger) *Controller {
	if cfg.Retry == nil {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.BreakerMaxFailures <= 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}

	c := &Controller{
		cfg:      cfg,
		deps:     deps,
		listener: listener,
		logger:   logger.With().Str("component", "session").Logger(),
		capTap:   audio.NewAnalyser(),
		playTap:  audio.NewAnalyser(),
		voice:    cfg.Voice,
	}
	c.activity = audio.NewActivity(c.capTap, c.playTap)
	c.acc = transcript.NewAccumulator(func(user, model string) {
		if c.listener.OnTranscript != nil {
			c.listener.OnTranscript(user, model)
		}
	})
	c.tools = tools.NewRegistry(logger)
	c.tools.Register(tools.RenderDiagramDeclaration(), tools.NewRenderDiagramHandler(c.acc.AppendModel))
	return c
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Voice returns the voice used for the next connection.
func (c *Controller) Voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// Muted reports whether microphone frames are being dropped.
func (c *Controller) Muted() bool {
	return c.muted.Load()
}

// ToggleMute flips the mute flag and returns the new value. It works in any
// state.
func (c *Controller) ToggleMute() bool {
	for {
		old := c.muted.Load()
		if c.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Activity returns the merged capture and playback spectrum.
func (c *Controller) Activity() []byte {
	return c.activity.Snapshot()
}

// LiveTranscript returns the uncommitted text of both speakers.
func (c *Controller) LiveTranscript() (user, model string) {
	return c.acc.Live()
}

// ScreenSharing reports whether a screen sampler is running.
func (c *Controller) ScreenSharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampler != nil
}

// Connect opens the microphone, the speaker and a live session, then starts
// streaming. history, when non-empty, is replayed to the model as context.
// A connect that is overtaken by Disconnect releases what it opened and
// returns nil.
func (c *Controller) Connect(ctx context.Context, history []conversation.Message) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.gen++
	gen := c.gen
	voice := c.voice
	c.state = StateConnecting
	c.mu.Unlock()
	c.emitState(StateConnecting)

	correlationID := observability.NewCorrelationID()
	logger := c.logger.With().Str("correlation_id", correlationID).Logger()
	metrics := observability.NewConnectionMetrics(correlationID)
	observability.SetConnectionState(int(StateConnecting))

	var (
		mic     capture.Stream
		speaker playback.Speaker
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := c.deps.Mic.Open(gctx)
		if err != nil {
			return fmt.Errorf("open microphone: %w", err)
		}
		mic = s
		return nil
	})
	g.Go(func() error {
		s, err := c.deps.Speaker.Open(gctx)
		if err != nil {
			return fmt.Errorf("open speaker: %w", err)
		}
		speaker = s
		return nil
	})
	release := func() {
		if mic != nil {
			mic.Close()
		}
		if speaker != nil {
			speaker.Close()
		}
	}
	if err := g.Wait(); err != nil {
		release()
		c.fail(gen, err, metrics, logger)
		return err
	}
	if !c.isCurrent(gen) {
		release()
		logger.Debug().Msg("Connect overtaken while opening devices")
		return nil
	}

	handle, err := c.deps.Dialer.Connect(ctx, live.Config{
		Model:             c.cfg.Model,
		Voice:             voice,
		SystemInstruction: c.cfg.SystemInstruction,
		Tools:             c.tools.Declarations(),
		ThinkingBudget:    c.cfg.ThinkingBudget,
	})
	if err != nil {
		release()
		c.fail(gen, err, metrics, logger)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		handle.Close()
		release()
		logger.Debug().Msg("Discarding live session opened after disconnect")
		return nil
	}
	conn := c.newConnection(gen, handle, mic, speaker, metrics, logger)
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	metrics.RecordConnected()
	observability.SetConnectionState(int(StateConnected))
	logger.Info().Str("voice", voice).Int("history", len(history)).Msg("Live session connected")
	c.emitState(StateConnected)

	conn.player.Start(conn.ctx)
	go c.receive(conn)
	conn.pipeline.Start(conn.ctx)

	if len(history) > 0 {
		if err := handle.SendText(PrimingText(history), true); err != nil {
			observability.RecordSendFailure("text")
			logger.Warn().Err(err).Msg("Failed to restore conversation context")
		}
	}
	return nil
}

func (c *Controller) newConnection(gen uint64, handle live.Session, mic capture.Stream, speaker playback.Speaker, metrics *observability.Metrics, logger zerolog.Logger) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		gen:      gen,
		ctx:      ctx,
		cancel:   cancel,
		handle:   handle,
		metrics:  metrics,
		logger:   logger,
		recvDone: make(chan struct{}),
	}
	conn.sched = playback.NewScheduler(c.playTap, logger)
	conn.player = playback.NewPlayer(conn.sched, speaker, c.cfg.PlaybackPeriod, logger)
	conn.pipeline = capture.NewPipeline(capture.PipelineConfig{
		Stream: mic,
		Sink: func(ctx context.Context, pkt audio.Packet) error {
			if conn.closing.Load() {
				return errClosing
			}
			return handle.SendAudio(pkt)
		},
		Tap:       c.capTap,
		Muted:     c.muted.Load,
		Breaker:   resilience.NewCircuitBreaker("live_audio", c.cfg.BreakerMaxFailures, c.cfg.BreakerReset),
		FrameSize: c.cfg.FrameSize,
		Logger:    logger,
	})
	return conn
}

// Disconnect tears down whatever is open and returns the messages committed
// from the pending transcript. Safe in any state and when called repeatedly.
func (c *Controller) Disconnect() []conversation.Message {
	c.mu.Lock()
	c.gen++
	conn, sampler := c.conn, c.sampler
	c.conn, c.sampler = nil, nil
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	msgs := c.teardown(conn, sampler, true)
	if changed {
		observability.SetConnectionState(int(StateDisconnected))
		c.emitState(StateDisconnected)
	}
	return msgs
}

// ChangeVoice selects the voice for future connections. An open session is
// closed and, after a short pause, reopened with history plus whatever the
// close committed.
func (c *Controller) ChangeVoice(ctx context.Context, voice string, history []conversation.Message) error {
	c.mu.Lock()
	c.voice = voice
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}

	committed := c.Disconnect()
	if err := resilience.Sleep(ctx, c.cfg.VoiceSwitchPause); err != nil {
		return err
	}
	resumed := make([]conversation.Message, 0, len(history)+len(committed))
	resumed = append(resumed, history...)
	resumed = append(resumed, committed...)
	return c.Connect(ctx, resumed)
}

// SendImage pushes a still image into the open session.
func (c *Controller) SendImage(data []byte, mimeType string) error {
	conn := c.active()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.handle.SendImage(audio.Packet{MIMEType: mimeType, Data: data}); err != nil {
		observability.RecordSendFailure("image")
		conn.logger.Warn().Err(err).Msg("Failed to send image")
		return err
	}
	return nil
}

// SendText sends a complete user turn, retrying transient failures. It
// reports whether the text was delivered.
func (c *Controller) SendText(ctx context.Context, text string) (bool, error) {
	conn := c.active()
	if conn == nil {
		return false, ErrNotConnected
	}
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		if conn.closing.Load() {
			return errClosing
		}
		return conn.handle.SendText(text, true)
	}, c.cfg.Retry, resilience.IsRetryableNetworkError)
	if err != nil {
		observability.RecordSendFailure("text")
		conn.logger.Warn().Err(err).Msg("Failed to send text")
		return false, err
	}
	return true, nil
}

// StartScreenShare opens the screen source and streams sampled frames into
// the open session until the stream ends or StopScreenShare is called.
func (c *Controller) StartScreenShare(ctx context.Context) error {
	conn := c.active()
	if conn == nil {
		return ErrNotConnected
	}
	if c.ScreenSharing() {
		return nil
	}
	if c.deps.Screen == nil {
		return fmt.Errorf("%w: no screen source configured", screen.ErrUnavailable)
	}

	stream, err := c.deps.Screen.Open(ctx)
	if err != nil {
		conn.logger.Warn().Err(err).Msg("Failed to start screen share")
		return err
	}

	var sampler *screen.Sampler
	sampler = screen.NewSampler(stream, screen.SamplerConfig{
		Interval: c.cfg.ScreenInterval,
		Width:    c.cfg.ScreenWidth,
		Quality:  c.cfg.ScreenQuality,
		Sink: func(ctx context.Context, mimeType string, data []byte) error {
			if conn.closing.Load() {
				return errClosing
			}
			return conn.handle.SendImage(audio.Packet{MIMEType: mimeType, Data: data})
		},
		OnEnd:  func() { c.screenEnded(sampler) },
		Logger: conn.logger,
	})

	c.mu.Lock()
	if c.conn != conn || c.sampler != nil {
		c.mu.Unlock()
		stream.Close()
		return nil
	}
	c.sampler = sampler
	c.mu.Unlock()

	sampler.Start(conn.ctx)
	conn.logger.Info().Msg("Screen share started")
	c.emitScreen(true)
	return nil
}

// StopScreenShare stops the screen sampler if one is running.
func (c *Controller) StopScreenShare() {
	c.mu.Lock()
	sampler := c.sampler
	c.sampler = nil
	c.mu.Unlock()

	if sampler != nil {
		sampler.Stop()
	}
}

func (c *Controller) screenEnded(s *screen.Sampler) {
	c.mu.Lock()
	if c.sampler == s {
		c.sampler = nil
	}
	c.mu.Unlock()
	c.emitScreen(false)
}

func (c *Controller) receive(conn *connection) {
	defer close(conn.recvDone)

	for {
		msg, err := conn.handle.Receive()
		if err != nil {
			if conn.closing.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				conn.logger.Info().Msg("Live session closed by service")
				err = nil
			} else {
				conn.logger.Error().Err(err).Msg("Live session failed")
			}
			go c.endFromRemote(conn, err)
			return
		}
		if conn.closing.Load() {
			return
		}
		c.handleMessage(conn, msg)
	}
}

func (c *Controller) handleMessage(conn *connection, msg *live.Message) {
	for _, pkt := range msg.Audio {
		if _, err := conn.sched.Enqueue(pkt); err != nil {
			conn.logger.Warn().Err(err).Msg("Skipping undecodable audio chunk")
		}
	}
	for _, text := range msg.Text {
		c.acc.AppendModel(text)
	}
	if msg.Interrupted {
		dropped := conn.player.Flush()
		observability.RecordInterruption()
		conn.logger.Debug().Int("dropped_chunks", dropped).Msg("Model interrupted")
		c.commit()
	}
	if msg.TurnComplete {
		c.commit()
	}
	if msg.InputTranscript != "" {
		c.acc.AppendUser(msg.InputTranscript)
	}
	if msg.OutputTranscript != "" {
		c.acc.AppendModel(msg.OutputTranscript)
	}
	if len(msg.ToolCalls) > 0 {
		responses := c.tools.Dispatch(conn.ctx, msg.ToolCalls)
		if err := conn.handle.SendToolResponses(responses); err != nil {
			observability.RecordSendFailure("tool_response")
			conn.logger.Warn().Err(err).Msg("Failed to send tool responses")
		}
	}
}

// endFromRemote handles the service ending the session. A nil err is a clean
// close.
func (c *Controller) endFromRemote(conn *connection, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.gen++
	sampler := c.sampler
	c.conn, c.sampler = nil, nil
	next := StateDisconnected
	if err != nil {
		next = StateError
	}
	c.state = next
	c.mu.Unlock()

	c.teardown(conn, sampler, false)
	observability.SetConnectionState(int(next))
	if err != nil {
		conn.metrics.RecordError("receive", "session")
		c.emitError(err)
	}
	c.emitState(next)
}

// teardown releases one connection. The pending transcript is committed once
// the receiver has stopped, so no late fragment can leak into it.
func (c *Controller) teardown(conn *connection, sampler *screen.Sampler, waitReceiver bool) []conversation.Message {
	if sampler != nil {
		sampler.Stop()
	}
	if conn == nil {
		return c.commit()
	}

	conn.closing.Store(true)
	conn.cancel()
	if err := conn.handle.Close(); err != nil {
		conn.logger.Debug().Err(err).Msg("Live session close failed")
	}
	if waitReceiver {
		<-conn.recvDone
	}

	msgs := c.commit()
	conn.player.Stop()
	conn.pipeline.Stop()
	c.capTap.Reset()
	c.playTap.Reset()
	conn.metrics.RecordClosed()
	conn.logger.Info().Msg("Live session torn down")
	return msgs
}

func (c *Controller) fail(gen uint64, err error, metrics *observability.Metrics, logger zerolog.Logger) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.mu.Unlock()

	kind := Classify(err)
	metrics.RecordConnectFailed(kind.String())
	observability.SetConnectionState(int(StateError))
	logger.Error().Err(err).Str("kind", kind.String()).Msg("Connect failed")
	c.emitState(StateError)
	c.emitError(err)
}

func (c *Controller) commit() []conversation.Message {
	msgs := c.acc.Commit()
	if len(msgs) > 0 && c.listener.OnCommit != nil {
		c.listener.OnCommit(msgs)
	}
	return msgs
}

func (c *Controller) active() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil
	}
	return c.conn
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) emitState(s State) {
	if c.listener.OnState != nil {
		c.listener.OnState(s)
	}
}

func (c *Controller) emitError(err error) {
	if c.listener.OnError != nil {
		c.listener.OnError(Classify(err), UserMessage(err))
	}
}

func (c *Controller) emitScreen(active bool) {
	if c.listener.OnScreenShare != nil {
		c.listener.OnScreenShare(active)
	}
}

// PrimingText wraps the most recent history in the context-restore envelope
// sent at the start of a resumed conversation.
func PrimingText(history []conversation.Message) string {
	if len(history) > PrimingWindow {
		history = history[len(history)-PrimingWindow:]
	}
	var b strings.Builder
	b.WriteString("[SYSTEM: RESTORING SESSION CONTEXT. DO NOT READ OUT LOUD. JUST CONFIRM READINESS.]\n\n")
	b.WriteString("PREVIOUS CHAT HISTORY:\n")
	b.WriteString(conversation.FormatHistory(history))
	b.WriteString("\n\n[END HISTORY]")
	return b.String()
}
