// Package rooms provisions video rooms and meeting tokens on the Daily REST API.
package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/collapsinghierarchy/nt-caller/internal/logs"
	"github.com/collapsinghierarchy/nt-caller/internal/metrics"
)

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("room API key not configured")

// APIError is a non-2xx answer from the room API.
type APIError struct {
	Status int
	Body   json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("room api: status %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(apiKey, baseURL string, lg *zap.Logger) *Client {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     lg,
	}
}

func (c *Client) Configured() bool { return c.apiKey != "" }

// CreateRoom creates a room with the given name.
func (c *Client) CreateRoom(ctx context.Context, name string) (Room, error) {
	var room Room
	err := c.post(ctx, "create_room", "/rooms", map[string]any{"name": name}, &room)
	return room, err
}

// MeetingToken issues a non-owner access token for userID in room.
func (c *Client) MeetingToken(ctx context.Context, room, userID string) (string, error) {
	body := map[string]any{
		"properties": map[string]any{
			"room_name": room,
			"is_owner":  false,
			"user_name": userID,
		},
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "meeting_token", "/meeting-tokens", body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.RoomAPIRequests.WithLabelValues(op, result).Inc()
	}()
	if !c.Configured() {
		return ErrNotConfigured
	}
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("room api request", zap.String("op", op), zap.String("key", logs.SafeKey(c.apiKey)))
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{Status: res.StatusCode, Body: raw}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
