// Package bootstrap loads an entity's event history, and that of every
// entity it spawned, before live events start to matter.
//
// Traversal is breadth first. Each level's histories are fetched in
// parallel with an errgroup bounded by the configured concurrency. Spawn
// events (agent.spawned with data.childId) add children to the next level;
// a shared visited set ensures each entity is fetched once per pass, so
// cyclic or repeated spawn references terminate.
//
// A child whose fetch fails is skipped for the pass and picked up again by
// the next Load. Events from all fetched entities are sorted by timestamp so
// that applying them in one batch gives the same state as replaying the
// full history.
package bootstrap
