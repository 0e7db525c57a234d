// ABOUTME: Entity summary returned by the hub's entity listing
// ABOUTME: Shared by the HTTP client, bootstrap and the local cache

package event

import "time"

// EntitySummary describes one entity in an agency listing.
type EntitySummary struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind,omitempty"`
	Name      string    `json:"name,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}
