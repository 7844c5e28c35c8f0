package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/vovakirdan/linechat/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Lookup(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Save(ctx, "alice", "hash-a"); err != nil {
		t.Fatalf("save alice: %v", err)
	}
	if err := s.Save(ctx, "alice", "hash-b"); !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	hash, err := s.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hash != "hash-a" {
		t.Fatalf("expected first hash to win, got %q", hash)
	}

	ok, err := s.Contains(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("expected alice to exist (%v)", err)
	}
	ok, err = s.Contains(ctx, "Alice")
	if err != nil || ok {
		t.Fatalf("usernames are case-sensitive, got ok=%v err=%v", ok, err)
	}
}

func TestLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	users := []string{"alice", "bob", "charlie"}
	for _, u := range users {
		if err := s.Save(ctx, u, "hash-"+u); err != nil {
			t.Fatalf("failed to save %s: %v", u, err)
		}
	}

	all, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	names := make([]string, 0, len(all))
	for name, hash := range all {
		if hash != "hash-"+name {
			t.Errorf("unexpected hash for %s: %q", name, hash)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) != len(users) {
		t.Fatalf("expected %d records, got %v", len(users), names)
	}
	for i := range users {
		if names[i] != users[i] {
			t.Errorf("expected %s at index %d, got %s", users[i], i, names[i])
		}
	}
}

func TestConcurrentSaveSingleWinner(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Save(ctx, "alice", "hash")
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, store.ErrUserExists) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
}
