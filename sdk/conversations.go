package krishichat

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ConversationsService reads persisted conversations from the backend.
type ConversationsService struct {
	client *Client
}

// ConversationSummary is one entry in the persisted conversation list.
type ConversationSummary struct {
	ID        string    `json:"_id"`
	User      string    `json:"user"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationPage is a page of persisted conversations.
type ConversationPage struct {
	Docs        []ConversationSummary `json:"docs"`
	TotalDocs   int                   `json:"totalDocs"`
	Limit       int                   `json:"limit"`
	Page        int                   `json:"page"`
	TotalPages  int                   `json:"totalPages"`
	HasPrevPage bool                  `json:"hasPrevPage"`
	HasNextPage bool                  `json:"hasNextPage"`
}

// SenderRole identifies the author of a persisted message. Unlike the live
// chat's user/assistant pair, persisted conversations also carry officer
// replies.
type SenderRole string

const (
	SenderFarmer  SenderRole = "farmer"
	SenderOfficer SenderRole = "officer"
	SenderBot     SenderRole = "bot"
)

// PersistedMessageType classifies a persisted message payload.
type PersistedMessageType string

const (
	PersistedText   PersistedMessageType = "text"
	PersistedMedia  PersistedMessageType = "media"
	PersistedSystem PersistedMessageType = "system"
)

// PersistedMessage is one stored message inside a conversation.
type PersistedMessage struct {
	ID           string               `json:"_id"`
	Conversation string               `json:"conversation"`
	SenderRole   SenderRole           `json:"senderRole"`
	Type         PersistedMessageType `json:"type"`
	Text         string               `json:"text"`
	Files        []string             `json:"files"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// ConversationDetail is a conversation with its full message history.
type ConversationDetail struct {
	ID       string             `json:"_id"`
	Title    string             `json:"title"`
	Messages []PersistedMessage `json:"messages"`
}

// List fetches a page of the caller's conversations.
func (s *ConversationsService) List(ctx context.Context, page, limit int) (*ConversationPage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	var resp struct {
		UserID        string           `json:"userId"`
		Conversations ConversationPage `json:"conversations"`
	}
	path := fmt.Sprintf("/conversations?page=%d&limit=%d", page, limit)
	if err := s.client.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Conversations, nil
}

// Get fetches one conversation with its messages.
func (s *ConversationsService) Get(ctx context.Context, conversationID string) (*ConversationDetail, error) {
	if conversationID == "" {
		return nil, NewInvalidRequestError("conversation id must not be empty")
	}
	var detail ConversationDetail
	if err := s.client.doJSON(ctx, http.MethodGet, "/conversations/"+conversationID, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}
