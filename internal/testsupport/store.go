package testsupport

import (
	"context"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustOpenQueue opens a task queue over a freshly-opened store.
func MustOpenQueue(t testing.TB, cfg *config.Config) (*store.Store, *taskqueue.Queue) {
	t.Helper()

	st := MustOpenStore(t, cfg)
	return st, taskqueue.New(st.DB())
}

// NewPlannedContent creates a planned content item with the given sections.
func NewPlannedContent(t testing.TB, st *store.Store, id string, sections []store.Section) *store.Content {
	t.Helper()

	item, err := st.NewContent(context.Background(), store.NewContentParams{
		ContentID:    id,
		Status:       store.ContentPlanned,
		Sections:     sections,
		VoiceID:      "voice-test",
		CharacterRef: "character-01",
	})
	if err != nil {
		t.Fatalf("store.NewContent: %v", err)
	}
	return item
}

// ThreeSections returns a standard hook/body/cta section plan for tests.
func ThreeSections() []store.Section {
	return []store.Section{
		{Index: 0, ComponentRef: "hook-01", Script: "Did you know this?"},
		{Index: 1, ComponentRef: "body-01", Script: "Here is the full story."},
		{Index: 2, ComponentRef: "cta-01", Script: "Follow for more."},
	}
}
