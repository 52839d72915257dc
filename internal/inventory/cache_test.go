package inventory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"clipforge/internal/services"
)

func countingLoader(loads *atomic.Int32, components []Component, err error) Loader {
	return LoaderFunc(func(ctx context.Context) ([]Component, error) {
		loads.Add(1)
		return components, err
	})
}

func TestGetLoadsOnceAndServesFromMemory(t *testing.T) {
	var loads atomic.Int32
	cache := NewCache(countingLoader(&loads, []Component{
		{ID: "hook-01", Kind: "hook", ImageRef: "img-1"},
		{ID: "body-01", Kind: "body", ImageRef: "img-2"},
	}, nil))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		component, err := cache.Get(ctx, "hook-01")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if component.ImageRef != "img-1" {
			t.Fatalf("unexpected component: %+v", component)
		}
	}
	if loads.Load() != 1 {
		t.Fatalf("expected one load, got %d", loads.Load())
	}
}

func TestGetUnknownComponent(t *testing.T) {
	var loads atomic.Int32
	cache := NewCache(countingLoader(&loads, nil, nil))

	_, err := cache.Get(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got: %v", err)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	var loads atomic.Int32
	cache := NewCache(countingLoader(&loads, []Component{{ID: "hook-01"}}, nil))

	ctx := context.Background()
	if _, err := cache.Get(ctx, "hook-01"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	cache.Invalidate()
	if _, err := cache.Get(ctx, "hook-01"); err != nil {
		t.Fatalf("Get after invalidate failed: %v", err)
	}
	if loads.Load() != 2 {
		t.Fatalf("expected reload after invalidate, got %d loads", loads.Load())
	}
}

func TestLoaderFailurePropagatesAndRetriesNextCall(t *testing.T) {
	var loads atomic.Int32
	fail := errors.New("sheet unavailable")
	loader := LoaderFunc(func(ctx context.Context) ([]Component, error) {
		if loads.Add(1) == 1 {
			return nil, fail
		}
		return []Component{{ID: "hook-01"}}, nil
	})
	cache := NewCache(loader)

	ctx := context.Background()
	_, err := cache.Get(ctx, "hook-01")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got: %v", err)
	}
	if _, err := cache.Get(ctx, "hook-01"); err != nil {
		t.Fatalf("second Get should succeed: %v", err)
	}
}

func TestIndependentCacheInstances(t *testing.T) {
	var loadsA, loadsB atomic.Int32
	cacheA := NewCache(countingLoader(&loadsA, []Component{{ID: "a"}}, nil))
	cacheB := NewCache(countingLoader(&loadsB, []Component{{ID: "b"}}, nil))

	ctx := context.Background()
	if _, err := cacheA.Get(ctx, "a"); err != nil {
		t.Fatalf("cacheA Get failed: %v", err)
	}
	if loadsB.Load() != 0 {
		t.Fatal("loading one cache must not touch another")
	}
	if _, err := cacheB.Get(ctx, "b"); err != nil {
		t.Fatalf("cacheB Get failed: %v", err)
	}
}
