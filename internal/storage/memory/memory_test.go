package memory

import (
	"context"
	"testing"

	"household/internal/storage"
)

func TestMemoryStoreLoadSave(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.Load(ctx); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Save(ctx, []byte(`{"months":{}}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil || string(got) != `{"months":{}}` {
		t.Fatalf("unexpected load: %q err=%v", got, err)
	}
	if s.Saves() != 1 {
		t.Fatalf("expected 1 save, got %d", s.Saves())
	}

	// Callers must not be able to mutate the stored bytes
	got[0] = 'X'
	if string(s.Bytes()) != `{"months":{}}` {
		t.Fatalf("stored bytes were mutated: %q", s.Bytes())
	}
}

func TestNewWithDataEmptyIsNotMissing(t *testing.T) {
	s := NewWithData([]byte{})
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("expected empty document, got error %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty bytes, got %q", got)
	}
}
