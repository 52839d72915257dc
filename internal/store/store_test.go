package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"clipforge/internal/store"
	"clipforge/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := st.NewContent(ctx, store.NewContentParams{Status: store.ContentPlanned})
	if err != nil {
		t.Fatalf("NewContent failed: %v", err)
	}
	if item.ContentID == "" {
		t.Fatal("expected content id to be assigned")
	}

	fetched, err := st.GetContent(ctx, item.ContentID)
	if err != nil {
		t.Fatalf("GetContent failed: %v", err)
	}
	if fetched == nil || fetched.Status != store.ContentPlanned {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}
}

func TestNewContentPersistsSections(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	item := testsupport.NewPlannedContent(t, st, "content-1", testsupport.ThreeSections())
	fetched, err := st.GetContent(context.Background(), item.ContentID)
	if err != nil {
		t.Fatalf("GetContent failed: %v", err)
	}
	if len(fetched.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(fetched.Sections))
	}
	if fetched.Sections[1].ComponentRef != "body-01" {
		t.Fatalf("section order not preserved: %#v", fetched.Sections)
	}
}

func TestTransitionRejectsIllegalPairsBeforeDB(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		from store.ContentStatus
		to   store.ContentStatus
	}{
		{store.ContentPlanned, store.ContentReady},
		{store.ContentReady, store.ContentPlanned},
		{store.ContentError, store.ContentPlanned},
		{store.ContentAnalyzed, store.ContentError},
		{store.ContentCancelled, store.ContentProducing},
		{store.ContentMeasured, store.ContentPosted},
	}
	for _, tc := range cases {
		// A nonexistent id proves the table is never touched: an illegal pair
		// must fail with ErrInvalidTransition, not report zero rows.
		_, err := st.TransitionContent(ctx, "no-such-content", tc.from, tc.to)
		if !errors.Is(err, store.ErrInvalidTransition) {
			t.Errorf("transition %s -> %s: expected ErrInvalidTransition, got %v", tc.from, tc.to, err)
		}
	}
}

func TestTransitionGuardedByCurrentStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewPlannedContent(t, st, "content-guard", nil)

	// Legal pair, but the row is in planned, not producing.
	affected, err := st.TransitionContent(ctx, item.ContentID, store.ContentProducing, store.ContentReady)
	if err != nil {
		t.Fatalf("transition returned error: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected zero affected rows, got %d", affected)
	}

	fetched, err := st.GetContent(ctx, item.ContentID)
	if err != nil {
		t.Fatalf("GetContent failed: %v", err)
	}
	if fetched.Status != store.ContentPlanned {
		t.Fatalf("status mutated by lost race: %s", fetched.Status)
	}
}

func TestTransitionHappyPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewPlannedContent(t, st, "content-happy", nil)

	affected, err := st.TransitionContent(ctx, item.ContentID, store.ContentPlanned, store.ContentProducing)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected one affected row, got %d", affected)
	}

	fetched, _ := st.GetContent(ctx, item.ContentID)
	if fetched.Status != store.ContentProducing {
		t.Fatalf("unexpected status: %s", fetched.Status)
	}
}

func TestPollContentOldestFirstBounded(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		testsupport.NewPlannedContent(t, st, fmt.Sprintf("content-%d", i), nil)
		time.Sleep(2 * time.Millisecond)
	}

	items, err := st.PollContent(ctx, store.ContentPlanned, 3)
	if err != nil {
		t.Fatalf("PollContent failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if item.ContentID != fmt.Sprintf("content-%d", i) {
			t.Fatalf("expected oldest-first ordering, got %s at %d", item.ContentID, i)
		}
	}
}

func TestFinishProductionWritesRefsAndTiming(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewPlannedContent(t, st, "content-finish", nil)
	if _, err := st.TransitionContent(ctx, item.ContentID, store.ContentPlanned, store.ContentProducing); err != nil {
		t.Fatalf("transition to producing: %v", err)
	}

	affected, err := st.FinishProduction(ctx, item.ContentID, "store://final.mp4", "folder/2026-08-28/content-finish", 42*time.Second)
	if err != nil {
		t.Fatalf("FinishProduction failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected one affected row, got %d", affected)
	}

	fetched, _ := st.GetContent(ctx, item.ContentID)
	if fetched.Status != store.ContentReady {
		t.Fatalf("unexpected status: %s", fetched.Status)
	}
	if fetched.VideoArtifactRef != "store://final.mp4" {
		t.Fatalf("artifact ref not persisted: %q", fetched.VideoArtifactRef)
	}
	if fetched.ProcessingTimeSec != 42 {
		t.Fatalf("processing time not persisted: %v", fetched.ProcessingTimeSec)
	}
}

func TestFailProductionRecordsMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewPlannedContent(t, st, "content-fail", nil)
	if _, err := st.TransitionContent(ctx, item.ContentID, store.ContentPlanned, store.ContentProducing); err != nil {
		t.Fatalf("transition to producing: %v", err)
	}

	affected, err := st.FailProduction(ctx, item.ContentID, "section 2 missing script", 5*time.Second)
	if err != nil {
		t.Fatalf("FailProduction failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected one affected row, got %d", affected)
	}

	fetched, _ := st.GetContent(ctx, item.ContentID)
	if fetched.Status != store.ContentError {
		t.Fatalf("unexpected status: %s", fetched.Status)
	}
	if fetched.ErrorMessage != "section 2 missing script" {
		t.Fatalf("error message not persisted: %q", fetched.ErrorMessage)
	}
}

func TestPublicationLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewPlannedContent(t, st, "content-pub", nil)
	pub, err := st.NewPublication(ctx, store.NewPublicationParams{
		ContentID: item.ContentID,
		AccountID: "acct-1",
		Platform:  "tiktok",
	})
	if err != nil {
		t.Fatalf("NewPublication failed: %v", err)
	}
	if pub.Status != store.PublicationScheduled {
		t.Fatalf("unexpected initial status: %s", pub.Status)
	}

	affected, err := st.MarkPosted(ctx, pub.ID, "post-123", time.Now())
	if err != nil {
		t.Fatalf("MarkPosted failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected one affected row, got %d", affected)
	}

	// Measured is terminal; posted -> measured is the only remaining edge.
	if _, err := st.TransitionPublication(ctx, pub.ID, store.PublicationPosted, store.PublicationMeasured); err != nil {
		t.Fatalf("transition to measured: %v", err)
	}
	if _, err := st.TransitionPublication(ctx, pub.ID, store.PublicationMeasured, store.PublicationPosted); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for terminal re-entry, got %v", err)
	}
}
