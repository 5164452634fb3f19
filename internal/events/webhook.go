package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

const (
	HeaderEvent     = "X-Arena-Event"
	HeaderDelivery  = "X-Arena-Delivery"
	HeaderSignature = "X-Arena-Signature"
)

type webhook struct {
	url string
	cb  *gobreaker.CircuitBreaker[struct{}]
}

// WebhookSink POSTs every event as JSON to a set of URLs.
// Each URL has its own circuit breaker, so a dead endpoint stops being hammered.
type WebhookSink struct {
	hooks  []webhook
	secret []byte
	client *http.Client
}

func NewWebhookSink(logger *slog.Logger, secret string, urls ...string) *WebhookSink {
	sink := &WebhookSink{
		secret: []byte(secret),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, url := range urls {
		sink.hooks = append(sink.hooks, webhook{
			url: url,
			cb: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
				Name:        url,
				MaxRequests: 1,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Info("Webhook circuit changed state", slog.String("url", name), slog.String("from", from.String()), slog.String("to", to.String()))
				},
			}),
		})
	}
	return sink
}

func (s *WebhookSink) Name() string { return "webhooks" }

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (s *WebhookSink) Handle(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	delivery, err := uuid.NewV7()
	if err != nil {
		return err
	}

	var failed []string
	for _, hook := range s.hooks {
		_, err := hook.cb.Execute(func() (struct{}, error) {
			return struct{}{}, s.post(ctx, hook.url, ev.Kind(), delivery.String(), body)
		})
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", hook.url, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("webhook delivery failed: %v", failed)
	}
	return nil
}

func (s *WebhookSink) post(ctx context.Context, url, kind, delivery string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, kind)
	req.Header.Set(HeaderDelivery, delivery)
	if len(s.secret) > 0 {
		req.Header.Set(HeaderSignature, Sign(s.secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
