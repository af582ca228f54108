// Package library persists bookmarked items and their attempt history in
// SQLite and owns the lifecycle state machine every status change must pass
// through. Status writes happen only via Transition, which re-checks the
// persisted status so racing workers cannot double-advance an item.
package library
