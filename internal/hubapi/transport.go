// ABOUTME: WebSocket transport for the live agency event stream
// ABOUTME: Implements eventbus.Transport with one reader goroutine per connection

package hubapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/eventbus"
)

// maxFrameSize bounds a single event frame.
const maxFrameSize = 4 << 20

// ErrClosedByHub is reported when the hub ends the stream with a normal
// close frame.
var ErrClosedByHub = errors.New("stream closed by hub")

// Transport opens live event streams for an agency over WebSocket.
type Transport struct {
	client *Client
	logger *slog.Logger
}

// Transport returns the live-stream transport for this client.
func (c *Client) Transport() *Transport {
	return &Transport{
		client: c,
		logger: c.logger.With("component", "hubapi_ws"),
	}
}

var _ eventbus.Transport = (*Transport)(nil)

// StreamURL returns the WebSocket URL for the agency's live events.
func (c *Client) StreamURL(agencyID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	rawPrefix := strings.TrimSuffix(u.EscapedPath(), "/")
	u.Path = strings.TrimSuffix(u.Path, "/") + strings.ReplaceAll(c.wsPath, "{agency}", agencyID)
	u.RawPath = rawPrefix + strings.ReplaceAll(c.wsPath, "{agency}", url.PathEscape(agencyID))
	return u.String(), nil
}

// Open starts connecting in the background and returns immediately. The
// handlers run on the connection's reader goroutine: OnOpen once the
// handshake succeeds, OnEvent per decoded event in arrival order, and
// OnClose exactly once when the stream ends.
func (t *Transport) Open(agencyID string, h eventbus.Handlers) (eventbus.Conn, error) {
	target, err := t.client.StreamURL(agencyID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		url:      target,
		agencyID: agencyID,
		handlers: h,
		cancel:   cancel,
		logger:   t.logger.With("agency_id", agencyID),
	}
	go c.run(ctx, t.client)
	return c, nil
}

type wsConn struct {
	url      string
	agencyID string
	handlers eventbus.Handlers
	cancel   context.CancelFunc
	logger   *slog.Logger

	closeOnce sync.Once
}

// Close stops the stream. OnClose follows from the reader goroutine with a
// nil error. Close does not wait, so it is safe to call from a handler.
func (c *wsConn) Close() error {
	c.cancel()
	return nil
}

func (c *wsConn) finish(err error) {
	c.closeOnce.Do(func() {
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(err)
		}
	})
}

func (c *wsConn) run(ctx context.Context, client *Client) {
	var closeErr error
	defer func() {
		// A close we asked for is not an error.
		if ctx.Err() != nil {
			closeErr = nil
		}
		c.finish(closeErr)
	}()

	header := http.Header{}
	if client.token != "" {
		header.Set("Authorization", "Bearer "+client.token)
	}

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPClient: client.client,
		HTTPHeader: header,
	})
	if err != nil {
		closeErr = fmt.Errorf("dialing %s: %w", c.url, err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameSize)

	c.logger.Debug("stream connected", "url", c.url)
	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				closeErr = ErrClosedByHub
			} else {
				closeErr = fmt.Errorf("reading stream: %w", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.dispatch(data)
	}
}

// dispatch delivers every event in a frame. A frame holds one event or an
// array of events.
func (c *wsConn) dispatch(frame []byte) {
	if !gjson.ValidBytes(frame) {
		c.logger.Warn("dropping malformed frame", "size", len(frame))
		return
	}

	root := gjson.ParseBytes(frame)
	items := []gjson.Result{root}
	if root.IsArray() {
		items = root.Array()
	}

	for _, item := range items {
		ev, err := event.Decode([]byte(item.Raw))
		if err != nil {
			c.logger.Warn("dropping malformed event", "error", err)
			continue
		}
		if c.handlers.OnEvent != nil {
			c.handlers.OnEvent(ev)
		}
	}
}
