package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"braidly/internal/domain/chat"
	"braidly/internal/gateway"
	"braidly/internal/presence"
)

// APIClient calls the gateway's REST surface: history pages, read receipts
// and the presence polling fallback.
type APIClient struct {
	Client  *http.Client
	BaseURL string
	Token   string
}

type messagePage struct {
	Items   []chat.Message `json:"items"`
	HasMore bool           `json:"hasMore"`
}

// ListMessages fetches one history page newest-first. An empty before cursor
// fetches the most recent page.
func (a *APIClient) ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, bool, error) {
	if a == nil || a.Client == nil {
		return nil, false, errors.New("client: http client not configured")
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}
	target := fmt.Sprintf("%s/api/v1/conversations/%s/messages?%s", a.BaseURL, url.PathEscape(conversationID), q.Encode())

	var page messagePage
	if err := a.do(ctx, http.MethodGet, target, nil, &page); err != nil {
		return nil, false, err
	}
	return page.Items, page.HasMore, nil
}

// MarkRead flips the read flag server-side and returns the canonical update.
func (a *APIClient) MarkRead(ctx context.Context, conversationID, messageID string) (gateway.MessageUpdatedPayload, error) {
	var update gateway.MessageUpdatedPayload
	if a == nil || a.Client == nil {
		return update, errors.New("client: http client not configured")
	}
	target := fmt.Sprintf("%s/api/v1/conversations/%s/messages/%s/read",
		a.BaseURL, url.PathEscape(conversationID), url.PathEscape(messageID))
	err := a.do(ctx, http.MethodPost, target, nil, &update)
	return update, err
}

// GetPresence reads one user's presence record.
func (a *APIClient) GetPresence(ctx context.Context, userID string) (presence.Record, error) {
	var rec presence.Record
	if a == nil || a.Client == nil {
		return rec, errors.New("client: http client not configured")
	}
	target := fmt.Sprintf("%s/api/v1/presence/%s", a.BaseURL, url.PathEscape(userID))
	err := a.do(ctx, http.MethodGet, target, nil, &rec)
	return rec, err
}

// Heartbeat refreshes the caller's presence over REST, for sessions without
// a live socket.
func (a *APIClient) Heartbeat(ctx context.Context) error {
	if a == nil || a.Client == nil {
		return errors.New("client: http client not configured")
	}
	return a.do(ctx, http.MethodPost, a.BaseURL+"/api/v1/presence/heartbeat", nil, nil)
}

// Offline marks the caller offline explicitly on clean teardown, instead of
// waiting for the gateway to notice the socket drop.
func (a *APIClient) Offline(ctx context.Context) error {
	if a == nil || a.Client == nil {
		return errors.New("client: http client not configured")
	}
	return a.do(ctx, http.MethodPost, a.BaseURL+"/api/v1/presence/offline", nil, nil)
}

func (a *APIClient) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("client: %s (%s)", apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("client: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
