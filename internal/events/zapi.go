package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ZAPIHandler posts message payloads to the Z-API gateway.
type ZAPIHandler struct {
	url    string
	token  string
	client *http.Client
}

func NewZAPIHandler(url, token string, client *http.Client) *ZAPIHandler {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ZAPIHandler{url: url, token: token, client: client}
}

// Handle sends the stored JSON as is. Any non-2xx response is a failure.
func (h *ZAPIHandler) Handle(ctx context.Context, msg OutboundMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(msg.Payload))
	if err != nil {
		return fmt.Errorf("events: build zapi request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("events: zapi request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("events: zapi returned status %d", resp.StatusCode)
	}
	return nil
}
