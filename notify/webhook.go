package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookNotifier posts notices to a contractor portal.
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
}

func NewWebhookNotifier(url, token string) *WebhookNotifier {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WebhookNotifier{httpClient: client, url: url}
}

type webhookError struct {
	Message string `json:"message"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, notice Notice) error {
	apiErr := new(webhookError)
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Correlation-Id", notice.CorrelationId).
		SetBody(notice).
		SetError(apiErr).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("send dispute notice: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("dispute webhook error: status=%d, message=%s", resp.StatusCode(), apiErr.Message)
	}
	return nil
}
