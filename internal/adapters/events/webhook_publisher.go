package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookPublisher delivers each activity envelope as one signed POST.
// Retries of the same outbox row carry the same Idempotency-Key (the event
// id), so a receiver can drop duplicates. Any non-2xx answer is returned
// as an error and the row stays queued.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
}

func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	req, err := p.request(ctx, topic, event)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s webhook: %w", event.EventType, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d for event %s", resp.StatusCode, event.EventID)
	}
	return nil
}

// request builds the signed POST. Routing headers let a receiver filter by
// tenant or subject without parsing the body.
func (p *WebhookPublisher) request(ctx context.Context, topic string, event domain.EventEnvelope) (*http.Request, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event.EventType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create webhook request: %w", err)
	}
	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("Idempotency-Key", event.EventID)
	h.Set("X-Activitylog-Topic", topic)
	h.Set("X-Activitylog-Event-Id", event.EventID)
	h.Set("X-Activitylog-Event-Type", event.EventType)
	h.Set("X-Activitylog-Revision", strconv.FormatUint(uint64(event.Revision), 10))
	h.Set("X-Activitylog-Tenant", event.TenantID)
	h.Set("X-Activitylog-Subject", event.Kind+"/"+event.SubjectID)
	h.Set("X-Hub-Signature-256", "sha256="+p.sign(body))
	return req, nil
}

func (p *WebhookPublisher) sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
