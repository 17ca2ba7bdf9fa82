package session

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-console/internal/audio"
	"github.com/lexiqai/voice-console/internal/capture"
	"github.com/lexiqai/voice-console/internal/conversation"
	"github.com/lexiqai/voice-console/internal/live"
	"github.com/lexiqai/voice-console/internal/playback"
	"github.com/lexiqai/voice-console/internal/screen"
)

// --- microphone ---

type fakeMicStream struct {
	pr     *io.PipeReader
	pw     *io.PipeWriter
	closed atomic.Bool
}

func (s *fakeMicStream) Read(p []byte) (int, error) { return s.pr.Read(p) }
func (s *fakeMicStream) SampleRate() int           { return 16000 }
func (s *fakeMicStream) Close() error {
	s.closed.Store(true)
	s.pw.Close()
	return s.pr.Close()
}

type fakeMic struct {
	mu      sync.Mutex
	err     error
	streams []*fakeMicStream
}

func (m *fakeMic) Open(ctx context.Context) (capture.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	pr, pw := io.Pipe()
	s := &fakeMicStream{pr: pr, pw: pw}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMic) last() *fakeMicStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[len(m.streams)-1]
}

// --- speaker ---

type fakeSpeaker struct {
	resets atomic.Int32
	closed atomic.Int32
}

func (s *fakeSpeaker) Write(pcm []byte) error { return nil }
func (s *fakeSpeaker) Reset() error {
	s.resets.Add(1)
	return nil
}
func (s *fakeSpeaker) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeOutput struct {
	mu       sync.Mutex
	gate     chan struct{}
	opening  chan struct{}
	speakers []*fakeSpeaker
}

func (o *fakeOutput) Open(ctx context.Context) (playback.Speaker, error) {
	o.mu.Lock()
	gate, opening := o.gate, o.opening
	o.mu.Unlock()

	if opening != nil {
		close(opening)
	}
	if gate != nil {
		<-gate
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	s := &fakeSpeaker{}
	o.speakers = append(o.speakers, s)
	return s, nil
}

func (o *fakeOutput) last() *fakeSpeaker {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.speakers[len(o.speakers)-1]
}

// --- live service ---

type recvResult struct {
	msg *live.Message
	err error
}

type fakeSession struct {
	inbound chan recvResult
	closed  chan struct{}
	once    sync.Once

	mu        sync.Mutex
	audio     int
	images    []audio.Packet
	texts     []string
	responses []live.ToolResponse
	textErr   error
}

func newFakeSession() *fakeSession {
	return &fakeSession{inbound: make(chan recvResult, 16), closed: make(chan struct{})}
}

func (s *fakeSession) SendAudio(pkt audio.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio++
	return nil
}

func (s *fakeSession) SendImage(pkt audio.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, pkt)
	return nil
}

func (s *fakeSession) SendText(text string, turnComplete bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.textErr != nil {
		return s.textErr
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *fakeSession) SendToolResponses(responses []live.ToolResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
	return nil
}

func (s *fakeSession) Receive() (*live.Message, error) {
	select {
	case r := <-s.inbound:
		return r.msg, r.err
	case <-s.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSession) push(msg *live.Message) { s.inbound <- recvResult{msg: msg} }

func (s *fakeSession) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func (s *fakeSession) audioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

func (s *fakeSession) imageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

func (s *fakeSession) toolResponses() []live.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]live.ToolResponse(nil), s.responses...)
}

type fakeDialer struct {
	mu       sync.Mutex
	err      error
	gate     chan struct{}
	dialing  chan struct{}
	configs  []live.Config
	sessions []*fakeSession
}

func (d *fakeDialer) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	d.mu.Lock()
	d.configs = append(d.configs, cfg)
	gate, dialing, err := d.gate, d.dialing, d.err
	d.mu.Unlock()

	if dialing != nil {
		close(dialing)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	s := newFakeSession()
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.configs)
}

func (d *fakeDialer) last() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[len(d.sessions)-1]
}

// --- screen ---

type fakeScreenStream struct {
	frames chan image.Image
	closed atomic.Int32
}

func (s *fakeScreenStream) Frames() <-chan image.Image { return s.frames }
func (s *fakeScreenStream) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeScreen struct {
	err    error
	stream *fakeScreenStream
}

func (f *fakeScreen) Open(ctx context.Context) (screen.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.stream = &fakeScreenStream{frames: make(chan image.Image, 4)}
	return f.stream, nil
}

// --- listener ---

type recorder struct {
	mu      sync.Mutex
	states  []State
	kinds   []Kind
	errors  []string
	commits [][]conversation.Message
	screen  []bool
}

func (r *recorder) listener() Listener {
	return Listener{
		OnState: func(s State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnCommit: func(msgs []conversation.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.commits = append(r.commits, msgs)
		},
		OnError: func(kind Kind, message string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.kinds = append(r.kinds, kind)
			r.errors = append(r.errors, message)
		},
		OnScreenShare: func(active bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.screen = append(r.screen, active)
		},
	}
}

func (r *recorder) stateLog() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) committed() []conversation.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []conversation.Message
	for _, c := range r.commits {
		all = append(all, c...)
	}
	return all
}

func (r *recorder) errorLog() ([]Kind, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Kind(nil), r.kinds...), append([]string(nil), r.errors...)
}

func (r *recorder) screenLog() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.screen...)
}

// --- harness ---

type harness struct {
	ctrl   *Controller
	dialer *fakeDialer
	mic    *fakeMic
	output *fakeOutput
	screen *fakeScreen
	rec    *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dialer: &fakeDialer{},
		mic:    &fakeMic{},
		output: &fakeOutput{},
		screen: &fakeScreen{},
		rec:    &recorder{},
	}
	h.ctrl = NewController(Config{
		Model:            "test-model",
		Voice:            "Charon",
		ThinkingBudget:   -1,
		FrameSize:        256,
		PlaybackPeriod:   10 * time.Millisecond,
		VoiceSwitchPause: time.Millisecond,
		ScreenInterval:   10 * time.Millisecond,
		ScreenWidth:      32,
		ScreenQuality:    50,
	}, Deps{
		Dialer:  h.dialer,
		Mic:     h.mic,
		Speaker: h.output,
		Screen:  h.screen,
	}, h.rec.listener(), zerolog.Nop())
	t.Cleanup(func() { h.ctrl.Disconnect() })
	return h
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
