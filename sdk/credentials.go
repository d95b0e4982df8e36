package krishichat

import (
	"context"
	"sync"
	"time"
)

// TokenSource supplies the bearer credential for backend calls. Token is
// called fresh for every chat submission, so implementations backed by a
// session provider should not serve stale cached values.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed credential.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

const liveTokenTTL = 30 * time.Minute

// LiveTokenSource mints ephemeral voice-session tokens from the backend and
// caches them for 30 minutes. Fresh forces a refetch.
type LiveTokenSource struct {
	client *Client

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

// LiveToken returns the cached ephemeral token, minting a new one when the
// cache is empty, expired, or fresh is set.
func (s *LiveTokenSource) LiveToken(ctx context.Context, fresh bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowLocked()
	if !fresh && s.token != "" && now.Before(s.expires) {
		return s.token, nil
	}

	var resp struct {
		Token struct {
			Name string `json:"name"`
		} `json:"token"`
		AccessToken string `json:"accessToken"`
	}
	if err := s.client.doJSONRaw(ctx, "POST", "/chat/create-gemini-live-token", nil, &resp); err != nil {
		return "", err
	}

	token := resp.Token.Name
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return "", NewAPIError("live token response carried no token")
	}
	s.token = token
	s.expires = now.Add(liveTokenTTL)
	return token, nil
}

func (s *LiveTokenSource) nowLocked() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
