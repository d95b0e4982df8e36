package krishichat

import (
	"context"
	"net/http"
	"time"
)

// QueriesService handles conversations forwarded to human officers.
type QueriesService struct {
	client *Client
}

// QueryStatus is the lifecycle state of a forwarded query.
type QueryStatus string

const (
	QueryPending  QueryStatus = "pending"
	QueryAnswered QueryStatus = "answered"
)

// QueryLocation is the geo context attached to a forwarded query.
type QueryLocation struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
	District    string    `json:"district"`
	Taluka      string    `json:"taluka"`
}

// ForwardedBy describes the farmer who escalated the conversation.
type ForwardedBy struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// ForwardedQuery is a conversation escalated to officers.
type ForwardedQuery struct {
	ID             string         `json:"_id"`
	Conversation   string         `json:"conversation"`
	ForwardedBy    ForwardedBy    `json:"forwardedBy"`
	TargetOfficers []string       `json:"targetOfficers"`
	Location       *QueryLocation `json:"location"`
	Status         QueryStatus    `json:"status"`
	Question       string         `json:"question"`
	Summary        string         `json:"summary"`
	Answer         string         `json:"answer"`
	ForwardedAt    time.Time      `json:"forwardedAt"`
	AnsweredBy     string         `json:"answeredBy"`
	AnsweredAt     *time.Time     `json:"answeredAt"`
}

// QueryPage is a page of forwarded queries.
type QueryPage struct {
	Docs       []ForwardedQuery `json:"docs"`
	TotalDocs  int              `json:"totalDocs"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
}

// Forward escalates a conversation to the officer pool.
func (s *QueriesService) Forward(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return NewInvalidRequestError("conversation id must not be empty")
	}
	payload := map[string]string{"conversationId": conversationID}
	return s.client.doJSON(ctx, http.MethodPost, "/forwarded-queries/forward", payload, nil)
}

// Mine lists the queries the calling farmer has forwarded.
func (s *QueriesService) Mine(ctx context.Context) ([]ForwardedQuery, error) {
	var page QueryPage
	if err := s.client.doJSON(ctx, http.MethodGet, "/forwarded-queries/me", nil, &page); err != nil {
		return nil, err
	}
	return page.Docs, nil
}

// All lists the queries visible to the calling officer.
func (s *QueriesService) All(ctx context.Context) ([]ForwardedQuery, error) {
	var page QueryPage
	if err := s.client.doJSON(ctx, http.MethodGet, "/forwarded-queries/", nil, &page); err != nil {
		return nil, err
	}
	return page.Docs, nil
}

// Answer submits an officer's answer to a forwarded query.
func (s *QueriesService) Answer(ctx context.Context, queryID, answer string) error {
	if queryID == "" {
		return NewInvalidRequestError("query id must not be empty")
	}
	payload := map[string]string{"answer": answer}
	return s.client.doJSON(ctx, http.MethodPatch, "/forwarded-queries/"+queryID+"/answer", payload, nil)
}
