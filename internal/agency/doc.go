// Package agency wires the sync layer together for consumers.
//
// A Client is created once per process. It owns the event bus registry, so
// every View on the same agency shares one live connection. Open runs the
// bootstrap fetch, projects the history, and only then subscribes to live
// events:
//
//	client, err := agency.NewFromConfig(cfg, logger)
//	view, err := client.Open(ctx, "acme", "a1")
//	defer view.Close()
//
//	cancel := view.Watch(func(entityID string) {
//		state, _ := view.Entity(entityID)
//		render(state)
//	})
//
// When the connection comes back after an outage, each open View fetches
// history again so events missed while disconnected are folded in.
package agency
