// ABOUTME: Raw JSON payload accessors for events using gjson paths
// ABOUTME: Lets projections read fields without a struct per event type

package event

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
	"github.com/zeebo/blake3"
)

// Field returns the payload value at the given gjson path.
func (e Event) Field(path string) gjson.Result {
	if len(e.Data) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(e.Data, path)
}

// FirstString returns the first non-empty string found among paths.
func (e Event) FirstString(paths ...string) string {
	for _, p := range paths {
		if v := e.Field(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// ChildID returns the spawned child's entity id for agent.spawned events.
func (e Event) ChildID() string {
	if e.Type != TypeSpawned {
		return ""
	}
	return e.FirstString("childId", "child_id", "agentId")
}

// Key identifies the event for idempotent application. Server ids win; for
// events without one the key is a digest of type, entity, timestamp and
// compacted payload, so the same fact delivered live and from history
// collapses to one key.
func (e Event) Key() string {
	if e.ID != "" {
		return "id:" + e.ID
	}

	var buf bytes.Buffer
	buf.WriteString(string(e.Type))
	buf.WriteByte(0)
	buf.WriteString(e.EntityID)
	buf.WriteByte(0)
	buf.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
	buf.WriteByte(0)
	if len(e.Data) > 0 {
		if err := json.Compact(&buf, e.Data); err != nil {
			buf.Write(e.Data)
		}
	}

	sum := blake3.Sum256(buf.Bytes())
	return "fp:" + hex.EncodeToString(sum[:16])
}
