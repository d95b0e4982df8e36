package krishichat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// liveTestServer is a scripted voice-provider endpoint.
type liveTestServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	setups chan json.RawMessage
	inputs chan json.RawMessage
	// replies are written back verbatim after the setup ack.
	replies []string
}

func (s *liveTestServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if got := r.URL.Query().Get("key"); got != "ephemeral-token" {
		s.t.Errorf("key = %q, want session token in query", got)
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	_, setup, err := conn.ReadMessage()
	if err != nil {
		s.t.Errorf("read setup: %v", err)
		return
	}
	s.setups <- setup

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`)); err != nil {
		s.t.Errorf("write setup ack: %v", err)
		return
	}
	for _, reply := range s.replies {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.inputs <- payload
	}
}

func startLiveTestServer(t *testing.T, replies ...string) (*liveTestServer, *GeminiLiveTransport) {
	t.Helper()
	server := &liveTestServer{
		t:       t,
		setups:  make(chan json.RawMessage, 1),
		inputs:  make(chan json.RawMessage, 16),
		replies: replies,
	}
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	transport := &GeminiLiveTransport{
		Endpoint: "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
	return server, transport
}

func recvJSON[T any](t *testing.T, ch chan json.RawMessage) T {
	t.Helper()
	var out T
	select {
	case payload := <-ch:
		if err := json.Unmarshal(payload, &out); err != nil {
			t.Fatalf("unmarshal %s: %v", payload, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return out
}

func TestGeminiLiveSetupHandshake(t *testing.T) {
	t.Parallel()
	server, transport := startLiveTestServer(t)

	opened := make(chan struct{}, 1)
	conn, err := transport.Connect(context.Background(), LiveConfig{
		Model:             DefaultLiveModel,
		SystemInstruction: "Answer in Hindi when asked.",
		Token:             "ephemeral-token",
	}, LiveCallbacks{OnOpen: func() { opened <- struct{}{} }})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer conn.Close()

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("OnOpen never fired")
	}

	setup := recvJSON[liveSetupMessage](t, server.setups)
	if setup.Setup.Model != DefaultLiveModel {
		t.Fatalf("setup model = %q", setup.Setup.Model)
	}
	if got := setup.Setup.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
		t.Fatalf("response modalities = %v, want [AUDIO]", got)
	}
	if setup.Setup.SystemInstruction == nil || setup.Setup.SystemInstruction.Parts[0].Text != "Answer in Hindi when asked." {
		t.Fatalf("system instruction = %+v", setup.Setup.SystemInstruction)
	}
}

func TestGeminiLiveSendFraming(t *testing.T) {
	t.Parallel()
	server, transport := startLiveTestServer(t)

	conn, err := transport.Connect(context.Background(), LiveConfig{
		Model: DefaultLiveModel,
		Token: "ephemeral-token",
	}, LiveCallbacks{})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer conn.Close()
	<-server.setups

	if err := conn.SendText("When should I sow bajra?"); err != nil {
		t.Fatalf("SendText error: %v", err)
	}
	text := recvJSON[liveClientContent](t, server.inputs)
	if !text.ClientContent.TurnComplete {
		t.Fatal("text turn not marked complete")
	}
	if turns := text.ClientContent.Turns; len(turns) != 1 || turns[0].Role != "user" || turns[0].Parts[0].Text != "When should I sow bajra?" {
		t.Fatalf("turns = %+v", text.ClientContent.Turns)
	}

	chunk := MediaChunk{MimeType: "audio/pcm;rate=16000", Data: "AAAA"}
	if err := conn.SendMedia(chunk); err != nil {
		t.Fatalf("SendMedia error: %v", err)
	}
	media := recvJSON[liveRealtimeInput](t, server.inputs)
	if got := media.RealtimeInput.MediaChunks; len(got) != 1 || got[0] != chunk {
		t.Fatalf("media chunks = %+v", got)
	}
}

func TestGeminiLiveDeliversServerMessages(t *testing.T) {
	t.Parallel()
	server, transport := startLiveTestServer(t,
		`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AQACAA=="}}]}}}`,
		`not even json`,
		`{"serverContent":{"turnComplete":true}}`,
	)

	messages := make(chan ServerMessage, 4)
	conn, err := transport.Connect(context.Background(), LiveConfig{
		Model: DefaultLiveModel,
		Token: "ephemeral-token",
	}, LiveCallbacks{OnMessage: func(m ServerMessage) { messages <- m }})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer conn.Close()
	<-server.setups

	first := <-messages
	if first.ServerContent == nil || first.ServerContent.ModelTurn == nil {
		t.Fatalf("first message = %+v, want audio turn", first)
	}
	if got := first.ServerContent.ModelTurn.Parts[0].InlineData.Data; got != "AQACAA==" {
		t.Fatalf("inline data = %q", got)
	}

	// The unparseable frame is skipped; the next delivery is turnComplete.
	second := <-messages
	if second.ServerContent == nil || !second.ServerContent.TurnComplete {
		t.Fatalf("second message = %+v, want turnComplete", second)
	}
}

func TestGeminiLiveCloseFiresOnCloseOnce(t *testing.T) {
	t.Parallel()
	server, transport := startLiveTestServer(t)

	closes := make(chan struct{}, 4)
	conn, err := transport.Connect(context.Background(), LiveConfig{
		Model: DefaultLiveModel,
		Token: "ephemeral-token",
	}, LiveCallbacks{OnClose: func() { closes <- struct{}{} }})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	<-server.setups

	if err := conn.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	select {
	case <-closes:
	case <-time.After(5 * time.Second):
		t.Fatal("OnClose never fired")
	}
	select {
	case <-closes:
		t.Fatal("OnClose fired more than once")
	case <-time.After(100 * time.Millisecond):
	}

	if err := conn.SendText("late"); err == nil {
		t.Fatal("SendText after Close: error = nil, want closed-session failure")
	}
}
