package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPPush posts notifications to an external push provider. The provider
// owns delivery and visibility; a non-2xx response is the only failure the
// coordinator sees.
type HTTPPush struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewHTTPPush(endpoint, key string) *HTTPPush {
	return &HTTPPush{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *HTTPPush) Notify(ctx context.Context, recipientID, title, body string, payload any) error {
	msg := map[string]any{
		"recipient_id": recipientID,
		"title":        title,
		"body":         body,
		"payload":      payload,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push provider status %d", resp.StatusCode)
	}
	return nil
}

// Fallback tries transports in order until one succeeds: websocket first for
// foreground clients, then the push provider.
type Fallback []interface {
	Notify(ctx context.Context, recipientID, title, body string, payload any) error
}

func (f Fallback) Notify(ctx context.Context, recipientID, title, body string, payload any) error {
	var lastErr error
	for _, t := range f {
		if err := t.Notify(ctx, recipientID, title, body, payload); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
