package krishichat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const streamErrorSuffix = "\n[Error: Failed to get response]"

// ChatController drives streamed chat submissions against a SessionStore.
//
// One submission is in flight at a time; Submit calls while a stream is open
// are ignored. The store is the single source of truth for UI state, so the
// controller only translates stream events into store operations.
type ChatController struct {
	client *Client
	store  *SessionStore
	logger *slog.Logger

	sending atomic.Bool

	mu    sync.Mutex
	input string
}

func newChatController(client *Client, store *SessionStore) *ChatController {
	return &ChatController{
		client: client,
		store:  store,
		logger: client.logger,
	}
}

// Store exposes the session store for subscription.
func (c *ChatController) Store() *SessionStore {
	return c.store
}

// Input returns the pending input text.
func (c *ChatController) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput updates the pending input text.
func (c *ChatController) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
}

// CreateNewChat starts a fresh local session and makes it current.
func (c *ChatController) CreateNewChat() string {
	return c.store.CreateSession()
}

// SetCurrentSession switches the active session.
func (c *ChatController) SetCurrentSession(id string) {
	c.store.SetCurrent(id)
}

// Submit sends text on the current session, creating one when none exists,
// and blocks until the response stream finishes. Blank text and re-entrant
// calls are ignored. The user message and an empty assistant placeholder are
// appended before the request resolves; a transport failure marks the
// placeholder and leaves the session usable.
func (c *ChatController) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !c.sending.CompareAndSwap(false, true) {
		c.logger.Debug("submit ignored: a submission is already in flight")
		return nil
	}
	defer c.sending.Store(false)

	snap := c.store.Snapshot()
	session, ok := snap.Current()
	if !ok {
		id := c.store.CreateSession()
		session = ChatSession{ID: id}
	}
	if len(session.Messages) == 0 {
		c.store.RenameSession(session.ID, text)
	}

	userMessage := Message{
		ID:      uuid.NewString(),
		Role:    RoleUser,
		Content: text,
		Kind:    MessageKindNormal,
	}
	assistantID := uuid.NewString()
	c.store.AppendMessages(session.ID,
		userMessage,
		Message{ID: assistantID, Role: RoleAssistant, Kind: MessageKindNormal},
	)

	c.mu.Lock()
	c.input = ""
	c.mu.Unlock()

	c.store.SetLoading(true)
	defer c.store.SetLoading(false)

	if err := c.streamExchange(ctx, session, text, assistantID); err != nil {
		c.store.AppendMessageError(assistantID, streamErrorSuffix)
		c.logger.Error("chat stream failed", "session", session.ID, "error", err)
		return err
	}
	return nil
}

// streamExchange issues the request and reduces the response stream into the
// store, strictly in arrival order.
func (c *ChatController) streamExchange(ctx context.Context, session ChatSession, text, assistantID string) error {
	path := "/conversations/start"
	if session.Persisted {
		path = "/conversations/" + session.ID
	}

	payload, err := jsonBody(map[string]string{"message": text})
	if err != nil {
		return err
	}
	req, err := c.client.newRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: http.MethodPost, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return parseAPIError(resp.StatusCode, raw)
	}

	decoder := newFrameDecoder()
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, event := range decoder.Feed(buf[:n]) {
				c.apply(session.ID, assistantID, event)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return &TransportError{Op: http.MethodPost, URL: req.URL.String(), Err: readErr}
		}
	}
}

func (c *ChatController) apply(sessionID, assistantID string, event StreamEvent) {
	switch e := event.(type) {
	case InitialEvent:
		if e.ConversationID != "" && e.ConversationID != sessionID {
			c.store.PromoteSessionID(sessionID, e.ConversationID, e.ConversationTitle)
		}
	case StatusEvent:
		switch e.Kind {
		case StatusThinking:
			c.store.SetMessageStatus(assistantID, "Thinking...")
		case StatusToolCall:
			c.store.SetMessageStatus(assistantID, fmt.Sprintf("Using tool %s...", e.ToolName))
		}
	case ChunkEvent:
		c.store.AppendChunk(assistantID, e.Text)
	case EndEvent:
		// Stream finished; the read loop drains to EOF.
	}
}

func jsonBody(payload any) (io.Reader, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, NewInvalidRequestError(fmt.Sprintf("encode request payload: %v", err))
	}
	return bytes.NewReader(encoded), nil
}
