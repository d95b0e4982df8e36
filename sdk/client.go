// Package krishichat is the Go client SDK for the Krishi Sahayak
// agricultural-advisory platform.
//
// It owns the client side of the platform's streamed chat protocol (session
// store, stream controller, frame decoder) and the realtime voice session
// (duplex transport, capture/playback wiring); the backend API and the
// voice-model provider are consumed as black boxes.
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
)

const defaultBaseURL = "http://localhost:3000/api/v1"

// Client is the main entry point for the SDK.
type Client struct {
	Conversations *ConversationsService
	Queries       *QueriesService
	Notifications *NotificationsService
	Files         *FilesService
	LiveTokens    *LiveTokenSource

	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tokens     TokenSource
}

// NewClient creates a new client. The bearer credential comes from the
// configured TokenSource; without one, requests go out unauthenticated.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newDefaultHTTPClient()
	}

	c.Conversations = &ConversationsService{client: c}
	c.Queries = &QueriesService{client: c}
	c.Notifications = &NotificationsService{client: c}
	c.Files = &FilesService{client: c}
	c.LiveTokens = &LiveTokenSource{client: c}
	return c
}

// NewChat creates a chat controller with its own session store.
func (c *Client) NewChat() *ChatController {
	return newChatController(c, NewSessionStore())
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.baseURL, "/") + path
}

func (c *Client) bearerToken(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	return c.tokens.Token(ctx)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, NewInvalidRequestError(fmt.Sprintf("build request: %v", err))
	}
	token, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// doJSON performs a JSON request and decodes the {success, data} envelope
// the backend wraps every REST payload in.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := c.doJSONRaw(ctx, method, path, payload, &envelope); err != nil {
		return err
	}
	if !envelope.Success {
		message := envelope.Message
		if message == "" {
			message = "request was not successful"
		}
		return NewAPIError(message)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return NewAPIError(fmt.Sprintf("decode response payload: %v", err))
	}
	return nil
}

// doJSONRaw performs a JSON request without envelope handling.
func (c *Client) doJSONRaw(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return NewInvalidRequestError(fmt.Sprintf("encode request payload: %v", err))
		}
		body = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: method, URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewAPIError(fmt.Sprintf("decode response: %v", err))
	}
	return nil
}
