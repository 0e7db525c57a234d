// ABOUTME: HTTP client for the agent-hub REST API
// ABOUTME: Lists entities, fetches entity history and invokes agents

package hubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// DefaultWebSocketPath is the live event endpoint. {agency} is replaced with
// the escaped agency id.
const DefaultWebSocketPath = "/agency/{agency}/events"

// Options configures a Client.
type Options struct {
	BaseURL string
	// Token is sent as a bearer token on every request, if set.
	Token         string
	WebSocketPath string
	HTTPClient    *http.Client
}

// Ack is the hub's reply to an invoke.
type Ack struct {
	OK     bool   `json:"ok"`
	RunID  string `json:"runId,omitempty"`
	Status string `json:"status,omitempty"`
}

// Client talks to one agent-hub.
type Client struct {
	baseURL string
	token   string
	wsPath  string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a client. Pass nil logger for default.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	wsPath := opts.WebSocketPath
	if wsPath == "" {
		wsPath = DefaultWebSocketPath
	}
	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		token:   opts.Token,
		wsPath:  wsPath,
		client:  hc,
		logger:  logger.With("component", "hubapi"),
	}
}

// BaseURL returns the hub root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func agencyPath(agencyID string, parts ...string) string {
	p := "/agency/" + url.PathEscape(agencyID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// ListEntities returns the agents in the agency. The hub may answer with a
// bare array or with {"agents": [...]}.
func (c *Client) ListEntities(ctx context.Context, agencyID string) ([]event.EntitySummary, error) {
	body, err := c.do(ctx, http.MethodGet, agencyPath(agencyID, "agents"), nil)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	list := unwrapList(body, "agents", "entities")
	var entities []event.EntitySummary
	if err := json.Unmarshal([]byte(list.Raw), &entities); err != nil {
		return nil, fmt.Errorf("decoding entities: %w", err)
	}
	return entities, nil
}

// GetEntityHistory returns the entity's stored events. Malformed entries are
// logged and dropped. Events missing an entity id inherit entityID.
func (c *Client) GetEntityHistory(ctx context.Context, agencyID, entityID string) ([]event.Event, error) {
	body, err := c.do(ctx, http.MethodGet, agencyPath(agencyID, "agent", entityID, "events"), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", entityID, err)
	}

	var events []event.Event
	unwrapList(body, "events").ForEach(func(_, item gjson.Result) bool {
		var ev event.Event
		if err := json.Unmarshal([]byte(item.Raw), &ev); err != nil {
			c.logger.Warn("dropping malformed history event", "entity_id", entityID, "error", err)
			return true
		}
		if ev.EntityID == "" {
			ev.EntityID = entityID
		}
		if err := ev.Validate(); err != nil {
			c.logger.Warn("dropping malformed history event", "entity_id", entityID, "error", err)
			return true
		}
		events = append(events, ev)
		return true
	})

	c.logger.Debug("fetched history", "agency_id", agencyID, "entity_id", entityID, "events", len(events))
	return events, nil
}

// Invoke sends payload to the entity and returns the hub's acknowledgement.
func (c *Client) Invoke(ctx context.Context, agencyID, entityID string, payload any) (*Ack, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, agencyPath(agencyID, "agent", entityID, "invoke"), data)
	if err != nil {
		return nil, fmt.Errorf("invoking %s: %w", entityID, err)
	}

	ack := &Ack{OK: true}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, ack); err != nil {
			return nil, fmt.Errorf("decoding ack: %w", err)
		}
	}
	return ack, nil
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// unwrapList returns body itself if it is an array, else the first of keys
// holding one.
func unwrapList(body []byte, keys ...string) gjson.Result {
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return root
	}
	for _, k := range keys {
		if v := root.Get(k); v.IsArray() {
			return v
		}
	}
	return gjson.Parse("[]")
}
