// Package bridge exposes the voice session to presentation clients over a
// websocket. Clients receive state as JSON events and send JSON intents.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-console/internal/config"
	"github.com/lexiqai/voice-console/internal/conversation"
	"github.com/lexiqai/voice-console/internal/observability"
	"github.com/lexiqai/voice-console/internal/session"
)

const (
	sendQueueSize = 256
	writeWait     = 10 * time.Second
	maxIntentSize = 32 << 20 // uploads travel inline
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The console binds to a local port; any local page may drive it.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Controller is the part of session.Controller the bridge drives.
type Controller interface {
	Connect(ctx context.Context, history []conversation.Message) error
	Disconnect() []conversation.Message
	ChangeVoice(ctx context.Context, voice string, history []conversation.Message) error
	ToggleMute() bool
	SendImage(data []byte, mimeType string) error
	SendText(ctx context.Context, text string) (bool, error)
	StartScreenShare(ctx context.Context) error
	StopScreenShare()

	State() session.State
	Voice() string
	Muted() bool
	ScreenSharing() bool
	Activity() []byte
	LiveTranscript() (user, model string)
}

// Reporter writes a report into the active conversation.
type Reporter interface {
	Generate(ctx context.Context, mgr *conversation.Manager) error
}

// Hub fans controller and conversation events out to every connected client
// and applies their intents.
type Hub struct {
	mgr      *conversation.Manager
	reports  Reporter
	period   time.Duration
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	ctrl     Controller
	tasks    sync.WaitGroup
	mu       sync.RWMutex
	clients  map[*client]struct{}
	activity bool // last broadcast frame had energy
}

// NewHub creates a hub over mgr. reports may be nil. activityFPS is how often
// activity frames are pushed. Attach a controller before serving.
func NewHub(mgr *conversation.Manager, reports Reporter, activityFPS int, logger zerolog.Logger) *Hub {
	if activityFPS <= 0 {
		activityFPS = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		mgr:     mgr,
		reports: reports,
		period:  time.Second / time.Duration(activityFPS),
		logger:  logger.With().Str("component", "bridge").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*client]struct{}),
	}
	mgr.OnChange(h.broadcastSessions)
	return h
}

// Attach sets the controller the hub drives.
func (h *Hub) Attach(ctrl Controller) {
	h.ctrl = ctrl
}

// Listener returns the controller callbacks that feed this hub. Committed
// messages are appended to the active conversation.
func (h *Hub) Listener() session.Listener {
	return session.Listener{
		OnState: func(s session.State) {
			h.broadcast(EventState, StatePayload{State: s.String()})
		},
		OnTranscript: func(user, model string) {
			h.broadcast(EventTranscript, TranscriptPayload{User: user, Model: model})
		},
		OnCommit: func(msgs []conversation.Message) {
			if err := h.mgr.Append(h.ctx, msgs...); err != nil {
				h.logger.Error().Err(err).Int("messages", len(msgs)).Msg("Failed to store committed messages")
			}
			h.broadcast(EventCommitted, CommittedPayload{Messages: msgs})
		},
		OnError: func(kind session.Kind, message string) {
			h.broadcast(EventError, ErrorPayload{Kind: kind.String(), Message: message})
		},
		OnScreenShare: func(active bool) {
			h.broadcast(EventScreenShare, ScreenSharePayload{Active: active})
		},
	}
}

// Run pushes activity frames until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pushActivity()
		}
	}
}

// Close cancels pending intents, waits for them and drops every client.
func (h *Hub) Close() {
	h.cancel()
	h.tasks.Wait()

	h.mu.Lock()
	for c := range h.clients {
		c.close()
		c.conn.Close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
}

// HandleWS upgrades a request into a presentation client.
func (h *Hub) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to upgrade websocket connection")
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxIntentSize)

		c := &client{
			conn:   conn,
			send:   make(chan []byte, sendQueueSize),
			done:   make(chan struct{}),
			logger: observability.WithCorrelationID(observability.NewCorrelationID()).With().Str("component", "bridge").Logger(),
		}
		c.logger.Info().Str("remote", r.RemoteAddr).Msg("Presentation client connected")

		h.register(c)
		defer h.unregister(c)

		go c.writeLoop()
		h.readLoop(c)
		c.logger.Info().Msg("Presentation client disconnected")
	}
}

func (h *Hub) readLoop(c *client) {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var in Intent
		if err := json.Unmarshal(payload, &in); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse intent")
			c.push(encode(EventError, ErrorPayload{Kind: "input", Message: "Malformed request."}))
			continue
		}
		h.dispatch(c, in)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	for _, msg := range h.snapshot() {
		c.push(msg)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// snapshot is everything a fresh client needs to render.
func (h *Hub) snapshot() [][]byte {
	user, model := h.ctrl.LiveTranscript()
	return [][]byte{
		encode(EventState, StatePayload{State: h.ctrl.State().String()}),
		encode(EventVoice, VoicePayload{Voice: h.ctrl.Voice(), Voices: config.SupportedVoices}),
		encode(EventMute, MutePayload{Muted: h.ctrl.Muted()}),
		encode(EventScreenShare, ScreenSharePayload{Active: h.ctrl.ScreenSharing()}),
		encode(EventSessions, SessionsPayload{Sessions: h.mgr.Sessions(), ActiveID: h.mgr.ActiveID()}),
		encode(EventTranscript, TranscriptPayload{User: user, Model: model}),
	}
}

func (h *Hub) broadcastSessions() {
	h.broadcast(EventSessions, SessionsPayload{Sessions: h.mgr.Sessions(), ActiveID: h.mgr.ActiveID()})
}

// pushActivity sends the current bins while a session is live, plus one
// trailing frame once it falls silent.
func (h *Hub) pushActivity() {
	if h.ctrl == nil || h.clientCount() == 0 {
		return
	}
	bins := h.ctrl.Activity()
	live := h.ctrl.State() == session.StateConnected
	energetic := false
	for _, b := range bins {
		if b != 0 {
			energetic = true
			break
		}
	}

	h.mu.Lock()
	send := live || energetic || h.activity
	h.activity = energetic
	h.mu.Unlock()

	if send {
		h.broadcast(EventActivity, ActivityPayload{Bins: base64.StdEncoding.EncodeToString(bins)})
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(eventType string, data any) {
	msg := encode(eventType, data)
	if msg == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.push(msg)
	}
}

// sendTo delivers an event to one client only.
func (h *Hub) sendTo(c *client, eventType string, data any) {
	if msg := encode(eventType, data); msg != nil {
		c.push(msg)
	}
}

// spawn runs an intent that may block off the client's read loop.
func (h *Hub) spawn(fn func(ctx context.Context)) {
	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		fn(h.ctx)
	}()
}

func encode(eventType string, data any) []byte {
	msg, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		logger := observability.ForComponent("bridge")
		logger.Error().Err(err).Str("event", eventType).Msg("Failed to encode event")
		return nil
	}
	return msg
}

// client is one presentation websocket.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

// push queues msg without blocking; a client that cannot keep up loses
// events rather than stalling the session.
func (c *client) push(msg []byte) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.Warn().Msg("Client send queue full, dropping event")
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug().Err(err).Msg("WebSocket write failed")
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
