// ABOUTME: Transport contract the event bus drives for each connection group
// ABOUTME: Implemented by the hub WebSocket client and by test fakes

package eventbus

import "github.com/deathbyknowledge/agent-hub-sub000/internal/event"

// Handlers receive callbacks for one opened connection. OnClose is called
// exactly once, with a nil error for a clean close.
type Handlers struct {
	OnOpen  func()
	OnEvent func(event.Event)
	OnClose func(err error)
}

// Conn is an open or opening connection.
type Conn interface {
	Close() error
}

// Transport opens connections for a group key. Open may return before the
// connection is established; establishment is signalled through OnOpen.
// Returning an error means the attempt failed before it started, and no
// handler will be called.
type Transport interface {
	Open(groupKey string, h Handlers) (Conn, error)
}
