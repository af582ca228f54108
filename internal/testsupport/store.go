package testsupport

import (
	"context"
	"testing"

	"folio/internal/config"
	"folio/internal/library"
)

// MustOpenStore opens a library.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem creates a new library item for tests using the provided store.
func NewItem(t testing.TB, store *library.Store, url, title string) *library.Item {
	t.Helper()

	item, err := store.Add(context.Background(), url, title)
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return item
}

// MustTransition advances an item's status and fails the test on any error.
func MustTransition(t testing.TB, store *library.Store, id int64, from, to library.Status) {
	t.Helper()

	if err := store.Transition(context.Background(), id, from, to, nil); err != nil {
		t.Fatalf("transition %s -> %s: %v", from, to, err)
	}
}
