package krishichat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultLiveModel is the voice model used for realtime advisory sessions.
const DefaultLiveModel = "models/gemini-2.0-flash-exp"

const (
	geminiLiveEndpoint        = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	defaultLiveConnectTimeout = 15 * time.Second
)

// GeminiLiveTransport speaks the Gemini Live bidirectional websocket
// protocol. Sessions authenticate with the ephemeral token minted by the
// backend, respond in audio, and carry the configured system instruction.
type GeminiLiveTransport struct {
	// Endpoint overrides the provider websocket URL (used in tests).
	Endpoint string
	// Dialer overrides the websocket dialer.
	Dialer *websocket.Dialer
}

type liveSetupMessage struct {
	Setup struct {
		Model            string `json:"model"`
		GenerationConfig struct {
			ResponseModalities []string `json:"responseModalities"`
		} `json:"generationConfig"`
		SystemInstruction *struct {
			Parts []Part `json:"parts"`
		} `json:"systemInstruction,omitempty"`
	} `json:"setup"`
}

type liveClientContent struct {
	ClientContent struct {
		Turns []struct {
			Role  string `json:"role"`
			Parts []Part `json:"parts"`
		} `json:"turns"`
		TurnComplete bool `json:"turnComplete"`
	} `json:"clientContent"`
}

type liveRealtimeInput struct {
	RealtimeInput struct {
		MediaChunks []MediaChunk `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

// Connect dials the provider, performs the setup handshake, and starts the
// read loop. OnOpen fires once setup completes.
func (t *GeminiLiveTransport) Connect(ctx context.Context, cfg LiveConfig, cb LiveCallbacks) (LiveConn, error) {
	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = geminiLiveEndpoint
	}
	wsURL := endpoint + "?key=" + url.QueryEscape(cfg.Token)

	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultLiveConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "GET", URL: endpoint, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "GET", URL: endpoint, Err: err}
	}

	setup := liveSetupMessage{}
	setup.Setup.Model = cfg.Model
	setup.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &struct {
			Parts []Part `json:"parts"`
		}{Parts: []Part{{Text: cfg.SystemInstruction}}}
	}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send live setup: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(defaultLiveConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read setup ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var ack ServerMessage
	if err := json.Unmarshal(payload, &ack); err != nil || ack.SetupComplete == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live frame %q", string(payload))
	}

	session := &geminiLiveConn{conn: conn, cb: cb, done: make(chan struct{})}
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	go session.readLoop()
	return session, nil
}

// geminiLiveConn is one open websocket session.
type geminiLiveConn struct {
	conn *websocket.Conn
	cb   LiveCallbacks

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

func (s *geminiLiveConn) SendText(text string) error {
	msg := liveClientContent{}
	msg.ClientContent.Turns = []struct {
		Role  string `json:"role"`
		Parts []Part `json:"parts"`
	}{{Role: "user", Parts: []Part{{Text: text}}}}
	msg.ClientContent.TurnComplete = true
	return s.sendJSON(msg)
}

func (s *geminiLiveConn) SendMedia(chunk MediaChunk) error {
	msg := liveRealtimeInput{}
	msg.RealtimeInput.MediaChunks = []MediaChunk{chunk}
	return s.sendJSON(msg)
}

func (s *geminiLiveConn) sendJSON(v any) error {
	if s.closed.Load() {
		return fmt.Errorf("live session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *geminiLiveConn) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *geminiLiveConn) readLoop() {
	defer close(s.done)
	defer func() {
		if s.cb.OnClose != nil {
			s.cb.OnClose()
		}
	}()

	for {
		// The provider emits JSON on both text and binary frames.
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if s.cb.OnError != nil {
				s.cb.OnError(err)
			}
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Unknown frame shapes are skipped, never fatal.
			continue
		}
		if s.cb.OnMessage != nil {
			s.cb.OnMessage(msg)
		}
	}
}
