package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Poster delivers a JSON document to an external endpoint.
type Poster interface {
	Post(ctx context.Context, body any) error
}

// WebhookPoster POSTs JSON bodies to a fixed URL.
type WebhookPoster struct {
	url     string
	timeout time.Duration
}

// NewWebhookPoster returns a poster for url. A non-positive timeout means 10s.
func NewWebhookPoster(url string, timeout time.Duration) *WebhookPoster {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookPoster{url: url, timeout: timeout}
}

// Post sends body and treats any non-2xx response as a failure.
func (w *WebhookPoster) Post(ctx context.Context, body any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := w.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Post(w.url).
		JSON(body).
		Set(fiber.HeaderUserAgent, "support-desk-webhook").
		Timeout(timeout)

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook: %w", errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", code)
	}
	return nil
}
