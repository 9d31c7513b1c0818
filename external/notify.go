package external

import (
	"context"
	"net/http"
	"strings"
)

// NotifyClient relays desktop notifications through a local notification
// service exposing POST /notify.
type NotifyClient struct {
	baseURL string
	http    *http.Client
}

// NewNotifyClient creates a notification client. A nil httpClient gets a
// default with DefaultTimeout.
func NewNotifyClient(baseURL string, httpClient *http.Client) *NotifyClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &NotifyClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Notify sends a notification with a title and message body.
func (c *NotifyClient) Notify(ctx context.Context, title, message string) error {
	return postJSON(ctx, c.http, c.baseURL+"/notify", map[string]string{
		"title":   title,
		"message": message,
	})
}
