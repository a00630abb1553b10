package external

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// EventAction is one tappable action attached to a notification.
type EventAction struct {
	TitleKey string `json:"title_key"`
	Link     string `json:"link"`
}

// Event is a notification delivered to a course owner.
type Event struct {
	UserID    string            `json:"user_id"`
	ServiceID string            `json:"service_id"`
	TitleKey  string            `json:"title_key"`
	BodyKey   string            `json:"body_key"`
	Data      map[string]string `json:"data,omitempty"`
	Type      string            `json:"type"`
	Priority  string            `json:"priority"`
	Actions   []EventAction     `json:"actions,omitempty"`
}

// Notifier delivers events to the notification service.
type Notifier interface {
	SendEvent(ctx context.Context, event Event) error
}

type notifyResponse struct {
	Detail string `json:"detail,omitempty"`
}

// HTTPNotifier posts events to the notification service REST endpoint.
type HTTPNotifier struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPNotifier creates a notifier client.
func NewHTTPNotifier(endpoint, apiKey string) *HTTPNotifier {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetHeader("Content-Type", "application/json")

	return &HTTPNotifier{
		client:   client,
		endpoint: endpoint,
	}
}

// SendEvent delivers one event. Callers on the pipeline path wrap this and
// swallow the error so a broken notification channel never fails a run.
func (n *HTTPNotifier) SendEvent(ctx context.Context, event Event) error {
	var resp notifyResponse
	httpResp, err := n.client.R().
		SetContext(ctx).
		SetBody(event).
		SetResult(&resp).
		Post(n.endpoint + "/api/v1/events")

	if err != nil {
		return fmt.Errorf("failed to call notification service: %w", err)
	}
	if httpResp.StatusCode() >= 300 {
		if resp.Detail != "" {
			return fmt.Errorf("notification service error: %s", resp.Detail)
		}
		return fmt.Errorf("notification service error: status %d", httpResp.StatusCode())
	}
	return nil
}
