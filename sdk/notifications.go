package krishichat

import (
	"context"
	"net/http"
	"time"
)

// NotificationsService reads and acknowledges the caller's in-app
// notifications (officer answers, forwarded-query updates).
type NotificationsService struct {
	client *Client
}

// NotificationData links a notification back to the entity it announces.
type NotificationData struct {
	QueryID        string `json:"queryId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Notification is one in-app notification.
type Notification struct {
	ID        string            `json:"_id"`
	User      string            `json:"user"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      *NotificationData `json:"data,omitempty"`
	IsRead    bool              `json:"isRead"`
	CreatedAt time.Time         `json:"createdAt"`
}

// List fetches the caller's notifications, newest first.
func (s *NotificationsService) List(ctx context.Context) ([]Notification, error) {
	var notifications []Notification
	if err := s.client.doJSON(ctx, http.MethodGet, "/notifications", nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkRead acknowledges one notification.
func (s *NotificationsService) MarkRead(ctx context.Context, notificationID string) error {
	if notificationID == "" {
		return NewInvalidRequestError("notification id must not be empty")
	}
	return s.client.doJSON(ctx, http.MethodPatch, "/notifications/"+notificationID+"/read", struct{}{}, nil)
}

// MarkAllRead acknowledges every unread notification.
func (s *NotificationsService) MarkAllRead(ctx context.Context) error {
	return s.client.doJSON(ctx, http.MethodPatch, "/notifications/mark-all-read", struct{}{}, nil)
}

// UnreadCount counts the unread entries in a notification list.
func UnreadCount(notifications []Notification) int {
	count := 0
	for _, n := range notifications {
		if !n.IsRead {
			count++
		}
	}
	return count
}
