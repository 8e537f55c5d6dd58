package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "local.db")
	ls, err := OpenLocalStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ls.Close()

	ctx := context.Background()
	if _, err := ls.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := ls.Save(ctx, "shared_structure", []byte(`{"years":[]}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := ls.Load(ctx, "shared_structure")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"years":[]}` {
		t.Fatalf("unexpected payload %q", got)
	}

	// Overwrite wins.
	if err := ls.Save(ctx, "shared_structure", []byte(`{"years":[1]}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = ls.Load(ctx, "shared_structure")
	if err != nil || string(got) != `{"years":[1]}` {
		t.Fatalf("expected overwritten payload, got %q err %v", got, err)
	}
}

func TestLocalStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	ctx := context.Background()

	ls, err := OpenLocalStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ls.Save(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := ls.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenLocalStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected durable payload, got %q err %v", got, err)
	}
}
