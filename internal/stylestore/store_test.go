package stylestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"inkpost/internal/domain"
	"inkpost/internal/ports"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "inkpost.db")
	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoStyleTable) {
		t.Fatalf("expected ErrNoStyleTable before training, got %v", err)
	}

	if err := store.Replace(ctx, domain.StyleTable{"a": "one", "b": "two"}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if err := store.Replace(ctx, domain.StyleTable{"a": "three"}); err != nil {
		t.Fatalf("second replace failed: %v", err)
	}

	table, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(table) != 1 || table["a"] != "three" {
		t.Fatalf("expected wholesale replacement, got %v", table)
	}
}

func TestSQLiteStorePersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inkpost.db")
	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := first.Replace(ctx, domain.StyleTable{"Z": "glyph"}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	_ = first.Close()

	second, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	table, err := second.Load(ctx)
	if err != nil || table["Z"] != "glyph" {
		t.Fatalf("expected persisted table, got %v %v", table, err)
	}
}

func TestMemoryStoreCopiesTables(t *testing.T) {
	t.Parallel()

	var store ports.StyleStore = NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoStyleTable) {
		t.Fatalf("expected ErrNoStyleTable, got %v", err)
	}

	input := domain.StyleTable{"a": "x"}
	if err := store.Replace(ctx, input); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	input["a"] = "mutated"

	table, _ := store.Load(ctx)
	if table["a"] != "x" {
		t.Fatalf("store must not alias caller maps")
	}
}
