package kv

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/sony/gobreaker"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStore_GetSetDel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}

	if err := store.Set(ctx, "k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Get = %s, want %s", got, `{"a":1}`)
	}

	if err := store.Del(ctx, "k"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Del err = %v, want ErrNotFound", err)
	}

	// 存在しないキーの削除はエラーにならない
	if err := store.Del(ctx, "k"); err != nil {
		t.Errorf("Del(missing) err = %v, want nil", err)
	}
}

func TestBadgerStore_GetByPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"session:a", "session:b", "sessions_other", "vehicles"} {
		if err := store.Set(ctx, key, []byte(`"`+key+`"`)); err != nil {
			t.Fatalf("Set(%s) failed: %v", key, err)
		}
	}

	entries, err := store.GetByPrefix(ctx, "session:")
	if err != nil {
		t.Fatalf("GetByPrefix failed: %v", err)
	}

	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "session:a" || keys[1] != "session:b" {
		t.Errorf("keys = %v, want [session:a session:b]", keys)
	}
}

func TestBadgerStore_Update_CreatesAndModifies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, "counter", func(current []byte, exists bool) ([]byte, error) {
		if exists {
			t.Error("expected key to be absent on first update")
		}
		return []byte("1"), nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	err = store.Update(ctx, "counter", func(current []byte, exists bool) ([]byte, error) {
		if !exists || string(current) != "1" {
			t.Errorf("current = %q (exists=%v), want 1", current, exists)
		}
		return []byte("2"), nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := store.Get(ctx, "counter")
	if string(got) != "2" {
		t.Errorf("counter = %s, want 2", got)
	}
}

func TestBadgerStore_Update_FuncErrorAbortsWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.Set(ctx, "k", []byte("before"))

	wantErr := errors.New("rejected")
	err := store.Update(ctx, "k", func(current []byte, exists bool) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	got, _ := store.Get(ctx, "k")
	if string(got) != "before" {
		t.Errorf("value = %s, want unchanged", got)
	}
}

func TestBadgerStore_Update_ConcurrentIncrementsAreNotLost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := UpdateJSON(ctx, store, "counter", func(n *int, exists bool) error {
				*n++
				return nil
			})
			if err != nil {
				t.Errorf("UpdateJSON failed: %v", err)
			}
		}()
	}
	wg.Wait()

	n, found, err := GetJSON[int](ctx, store, "counter")
	if err != nil || !found {
		t.Fatalf("GetJSON failed: found=%v err=%v", found, err)
	}
	if n != workers {
		t.Errorf("counter = %d, want %d", n, workers)
	}
}

func TestJSONHelpers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	type record struct {
		ID   string `json:"id"`
		Seen int    `json:"seen"`
	}

	_, found, err := GetJSON[[]record](ctx, store, "records")
	if err != nil || found {
		t.Fatalf("GetJSON(missing) found=%v err=%v, want false/nil", found, err)
	}

	if err := SetJSON(ctx, store, "records", []record{{ID: "r1"}}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	err = UpdateJSON(ctx, store, "records", func(rs *[]record, exists bool) error {
		(*rs)[0].Seen++
		*rs = append(*rs, record{ID: "r2"})
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateJSON failed: %v", err)
	}

	rs, _, _ := GetJSON[[]record](ctx, store, "records")
	if len(rs) != 2 || rs[0].Seen != 1 || rs[1].ID != "r2" {
		t.Errorf("records = %+v", rs)
	}

	_ = store.Set(ctx, "broken", []byte("{not json"))
	if _, _, err := GetJSON[record](ctx, store, "broken"); err == nil {
		t.Error("expected decode error for malformed value")
	}
}

// --- サーキットブレーカー ---

type failingStore struct {
	Store
	calls int
	err   error
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	return nil, f.err
}

func newTestBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "KV-test",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

func TestBreakerStore_OpensOnBackendFailures(t *testing.T) {
	backend := &failingStore{err: errors.New("connection refused")}
	store := WithCircuitBreaker(backend, newTestBreaker())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Get(ctx, "k"); err == nil {
			t.Fatal("expected backend error")
		}
	}

	_, err := store.Get(ctx, "k")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3", backend.calls)
	}
}

func TestBreakerStore_NotFoundDoesNotTrip(t *testing.T) {
	backend := &failingStore{err: ErrNotFound}
	store := WithCircuitBreaker(backend, newTestBreaker())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("attempt %d: err = %v, want ErrNotFound", i, err)
		}
	}
	if backend.calls != 5 {
		t.Errorf("backend calls = %d, want 5", backend.calls)
	}
}

func TestBreakerStore_UpdateFuncErrorDoesNotTrip(t *testing.T) {
	cb := newTestBreaker()
	store := WithCircuitBreaker(newTestStore(t), cb)
	ctx := context.Background()

	domainErr := errors.New("vehicle not found")
	for i := 0; i < 5; i++ {
		err := store.Update(ctx, "vehicles", func(current []byte, exists bool) ([]byte, error) {
			return nil, domainErr
		})
		if !errors.Is(err, domainErr) {
			t.Fatalf("attempt %d: err = %v, want %v", i, err, domainErr)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := map[string]string{
		"session:":     "session:",
		"a*b":          `a\*b`,
		"[x]?":         `\[x\]\?`,
		"smtarpark:s:": "smtarpark:s:",
	}
	for in, want := range tests {
		if got := escapeGlob(in); got != want {
			t.Errorf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}
