package krishichat

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
)

// ConnectionState is the lifecycle state of a realtime voice session.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// MediaChunk is one outbound realtime media frame. Data is base64-encoded.
type MediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// InlineData is an inline media payload inside a server part.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one piece of a model turn.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// ModelTurn is the model's contribution within a server message.
type ModelTurn struct {
	Parts []Part `json:"parts"`
}

// ServerContent is the content portion of a live server message.
type ServerContent struct {
	ModelTurn    *ModelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
}

// ServerMessage is one inbound message from the voice-model provider.
type ServerMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
}

// LiveCallbacks are the transport's event hooks.
type LiveCallbacks struct {
	OnOpen    func()
	OnMessage func(ServerMessage)
	OnClose   func()
	OnError   func(error)
}

// LiveConfig configures a duplex voice session.
type LiveConfig struct {
	Model             string
	SystemInstruction string
	Token             string
}

// LiveConn is an open duplex session. Sends are atomic with respect to the
// transport; concurrent callers never interleave partial frames.
type LiveConn interface {
	SendText(text string) error
	SendMedia(chunk MediaChunk) error
	Close() error
}

// LiveTransport opens duplex sessions against the voice-model provider.
// Keeping the provider behind this interface keeps the controller logic
// transport-agnostic.
type LiveTransport interface {
	Connect(ctx context.Context, cfg LiveConfig, cb LiveCallbacks) (LiveConn, error)
}

// AudioSink consumes inbound PCM audio (24kHz mono s16le).
type AudioSink interface {
	Feed(pcm []byte)
}

// LiveControllerConfig configures a LiveController.
type LiveControllerConfig struct {
	Transport         LiveTransport
	Sink              AudioSink
	Model             string
	SystemInstruction string
	Logger            *slog.Logger
}

// LiveController owns the realtime voice session lifecycle: it connects the
// transport, retains the inbound message log, feeds decoded audio to the
// sink, and tracks connection state for the UI.
type LiveController struct {
	transport LiveTransport
	sink      AudioSink
	logger    *slog.Logger

	model             string
	systemInstruction string

	mu        sync.Mutex
	conn      LiveConn
	state     ConnectionState
	lastError string
	messages  []ServerMessage
	processed int
}

// NewLiveController creates a disconnected controller.
func NewLiveController(cfg LiveControllerConfig) *LiveController {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = DefaultLiveModel
	}
	return &LiveController{
		transport:         cfg.Transport,
		sink:              cfg.Sink,
		logger:            logger,
		model:             model,
		systemInstruction: cfg.SystemInstruction,
		state:             StateDisconnected,
	}
}

// State reports the connection state.
func (l *LiveController) State() ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connected reports whether the session is open.
func (l *LiveController) Connected() bool {
	return l.State() == StateConnected
}

// LastError returns the most recent session error message, if any.
func (l *LiveController) LastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastError
}

// Messages returns a copy of the inbound message log.
func (l *LiveController) Messages() []ServerMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ServerMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// Connect opens a session with the given ephemeral credential. Any prior
// session is torn down first, so Connect is safe to call repeatedly.
func (l *LiveController) Connect(ctx context.Context, token string) error {
	l.Stop()

	l.mu.Lock()
	l.state = StateConnecting
	l.lastError = ""
	l.mu.Unlock()

	conn, err := l.transport.Connect(ctx, LiveConfig{
		Model:             l.model,
		SystemInstruction: l.systemInstruction,
		Token:             token,
	}, LiveCallbacks{
		OnOpen:    l.onOpen,
		OnMessage: l.onMessage,
		OnClose:   l.onClose,
		OnError:   l.onError,
	})
	if err != nil {
		l.mu.Lock()
		l.state = StateError
		l.lastError = err.Error()
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	// The transport may have fired OnClose before Connect returned (a
	// server that drops the session immediately); a handle must not
	// outlive its close callback.
	if l.state == StateConnecting || l.state == StateConnected {
		l.conn = conn
	}
	l.mu.Unlock()
	return nil
}

// SendText sends a turn-complete text message on the session. Not being
// connected is a no-op with a warning.
func (l *LiveController) SendText(text string) error {
	conn := l.activeConn()
	if conn == nil {
		l.logger.Warn("live send dropped: session not connected")
		return nil
	}
	return conn.SendText(text)
}

// SendMedia forwards an outbound media frame (microphone audio) on the
// session. Not being connected is a no-op with a warning.
func (l *LiveController) SendMedia(chunk MediaChunk) error {
	conn := l.activeConn()
	if conn == nil {
		l.logger.Warn("live send dropped: session not connected")
		return nil
	}
	return conn.SendMedia(chunk)
}

func (l *LiveController) activeConn() LiveConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateConnected {
		return nil
	}
	return l.conn
}

// Stop closes the session if one is open, swallowing close errors, and
// clears the message log. Always safe to call.
func (l *LiveController) Stop() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.state = StateDisconnected
	l.messages = nil
	l.processed = 0
	l.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			l.logger.Warn("failed to close live session", "error", err)
		}
	}
}

func (l *LiveController) onOpen() {
	l.mu.Lock()
	l.state = StateConnected
	l.mu.Unlock()
	l.logger.Info("live session connected")
}

func (l *LiveController) onMessage(msg ServerMessage) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	pending := l.messages[l.processed:]
	l.processed = len(l.messages)
	sink := l.sink
	l.mu.Unlock()

	// Only messages past the cursor are decoded, so retained log entries
	// are never replayed into the sink.
	if sink == nil {
		return
	}
	for _, m := range pending {
		feedAudioParts(sink, m)
	}
}

func feedAudioParts(sink AudioSink, msg ServerMessage) {
	if msg.ServerContent == nil || msg.ServerContent.ModelTurn == nil {
		return
	}
	for _, part := range msg.ServerContent.ModelTurn.Parts {
		if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MimeType, "audio/") {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			continue
		}
		sink.Feed(pcm)
	}
}

func (l *LiveController) onClose() {
	l.mu.Lock()
	if l.state != StateError {
		l.state = StateDisconnected
	}
	l.conn = nil
	l.messages = nil
	l.processed = 0
	l.mu.Unlock()
	l.logger.Info("live session closed")
}

func (l *LiveController) onError(err error) {
	l.mu.Lock()
	l.state = StateError
	l.lastError = err.Error()
	l.mu.Unlock()
	l.logger.Error("live session error", "error", err)
}
