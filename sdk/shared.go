package krishichat

import "context"

// SessionSummary is the id/title pair rendered in session lists.
type SessionSummary struct {
	ID    string
	Title string
}

// SharedChat is the single source of chat state shared by every view: one
// chat controller's optimistic store merged with the backend-confirmed
// conversation list. Views subscribe to the store for live updates and call
// Sessions for the combined sidebar list.
type SharedChat struct {
	Chat *ChatController

	conversations *ConversationsService
}

// NewSharedChat wires a shared chat context over the client.
func NewSharedChat(client *Client) *SharedChat {
	return &SharedChat{
		Chat:          client.NewChat(),
		conversations: client.Conversations,
	}
}

// Sessions returns local sessions merged with the backend list. Local
// entries survive only while no backend entry shares their id; once a
// session is promoted to its server id the backend copy is authoritative.
func (s *SharedChat) Sessions(ctx context.Context) ([]SessionSummary, error) {
	page, err := s.conversations.List(ctx, 1, 20)
	if err != nil {
		return nil, err
	}

	backend := make([]SessionSummary, 0, len(page.Docs))
	for _, doc := range page.Docs {
		backend = append(backend, SessionSummary{ID: doc.ID, Title: doc.Title})
	}
	return mergeSessions(s.Chat.Store().Snapshot().Sessions, backend), nil
}

// mergeSessions unions local and backend sessions by id, local first,
// dropping local shadows of backend-confirmed entries.
func mergeSessions(local []ChatSession, backend []SessionSummary) []SessionSummary {
	confirmed := make(map[string]struct{}, len(backend))
	for _, session := range backend {
		confirmed[session.ID] = struct{}{}
	}

	merged := make([]SessionSummary, 0, len(local)+len(backend))
	for _, session := range local {
		if _, ok := confirmed[session.ID]; ok {
			continue
		}
		merged = append(merged, SessionSummary{ID: session.ID, Title: session.Title})
	}
	return append(merged, backend...)
}
