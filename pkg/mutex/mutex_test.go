package mutex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tenantctl/tenantctl/pkg/util"
)

// ============================================================================
// Fake Record Store
// ============================================================================

type fakeStore struct {
	mu      sync.Mutex
	records map[string]map[string]string
	updates int
	deletes int

	failDelete bool
	failUpdate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]map[string]string)}
}

func (f *fakeStore) CreateRecord(ctx context.Context, name string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[name]; ok {
		return fmt.Errorf("record %s: %w", name, util.ErrAlreadyExists)
	}
	f.records[name] = copyFields(fields)
	return nil
}

func (f *fakeStore) GetRecord(ctx context.Context, name string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.records[name]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", name, util.ErrNotFound)
	}
	return copyFields(fields), nil
}

func (f *fakeStore) UpdateRecord(ctx context.Context, name string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return errors.New("device unreachable")
	}
	if _, ok := f.records[name]; !ok {
		return fmt.Errorf("record %s: %w", name, util.ErrNotFound)
	}
	f.records[name] = copyFields(fields)
	f.updates++
	return nil
}

func (f *fakeStore) DeleteRecord(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("device unreachable")
	}
	delete(f.records, name)
	f.deletes++
	return nil
}

func (f *fakeStore) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func (f *fakeStore) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[name]
	return ok
}

func (f *fakeStore) stamp(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[name][LeaseField]
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// ============================================================================
// Acquire / Contend
// ============================================================================

func TestAcquireCreatesLease(t *testing.T) {
	store := newFakeStore()
	m := New(store, "bigip-1", Options{})
	defer m.Release(context.Background())

	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if m.State() != StateHeld {
		t.Fatalf("expected held state, got %s", m.State())
	}
	if !store.has("tenantctl_lock_bigip-1") {
		t.Fatal("lease record not created")
	}
}

func TestSecondAcquireFailsWithoutDeletingLease(t *testing.T) {
	store := newFakeStore()
	first := New(store, "bigip-1", Options{})
	if err := first.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release(context.Background())

	second := New(store, "bigip-1", Options{})
	err := second.Acquire(context.Background())
	if !errors.Is(err, util.ErrMutexHeld) {
		t.Fatalf("expected mutex-held error, got %v", err)
	}
	var merr *util.MutexError
	if !errors.As(err, &merr) || merr.RetryAfter <= 0 {
		t.Fatalf("expected retry hint, got %v", err)
	}
	if !store.has("tenantctl_lock_bigip-1") {
		t.Fatal("contending acquire must not delete a live lease")
	}
	if second.State() != StateUnlocked {
		t.Fatalf("failed acquire must return to unlocked, got %s", second.State())
	}
}

func TestStaleLeaseTakenOver(t *testing.T) {
	store := newFakeStore()
	stale := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)
	store.records["tenantctl_lock_bigip-1"] = map[string]string{LeaseField: stale}

	broadcast := false
	m := New(store, "bigip-1", Options{
		Timeout:       5 * time.Minute,
		GraceDelay:    time.Millisecond,
		StopBroadcast: func(ctx context.Context) { broadcast = true },
	})
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire over stale lease: %v", err)
	}
	defer m.Release(context.Background())

	if !broadcast {
		t.Fatal("stop broadcast must fire before the retry")
	}
	if got := store.stamp("tenantctl_lock_bigip-1"); got == stale {
		t.Fatal("lease timestamp not rewritten by takeover")
	}
}

func TestUnparseableLeaseTreatedAsStale(t *testing.T) {
	store := newFakeStore()
	store.records["tenantctl_lock_bigip-1"] = map[string]string{LeaseField: "garbage"}

	m := New(store, "bigip-1", Options{GraceDelay: time.Millisecond})
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire over unparseable lease: %v", err)
	}
	m.Release(context.Background())
}

func TestTakeoverRaceLostFails(t *testing.T) {
	store := newFakeStore()
	stale := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)
	store.records["tenantctl_lock_bigip-1"] = map[string]string{LeaseField: stale}

	m := New(store, "bigip-1", Options{
		GraceDelay: time.Millisecond,
		StopBroadcast: func(ctx context.Context) {
			// A competitor recreates the lease during the grace window.
			store.mu.Lock()
			store.records["tenantctl_lock_bigip-1"] = map[string]string{
				LeaseField: time.Now().UTC().Format(time.RFC3339),
			}
			store.mu.Unlock()
		},
	})
	err := m.Acquire(context.Background())
	if !errors.Is(err, util.ErrMutexHeld) {
		t.Fatalf("expected mutex-held error after lost race, got %v", err)
	}
}

// ============================================================================
// Refresh / Release
// ============================================================================

func TestRefreshRewritesTimestamp(t *testing.T) {
	store := newFakeStore()
	m := New(store, "bigip-1", Options{RefreshInterval: 5 * time.Millisecond})
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for store.updateCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.updateCount() < 2 {
		t.Fatal("refresh loop did not rewrite the lease")
	}

	m.Release(context.Background())
	settled := store.updateCount()
	time.Sleep(25 * time.Millisecond)
	if store.updateCount() != settled {
		t.Fatal("refresh loop kept running after release")
	}
}

func TestRefreshFailureDoesNotAbort(t *testing.T) {
	store := newFakeStore()
	m := New(store, "bigip-1", Options{RefreshInterval: 5 * time.Millisecond})
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	store.mu.Lock()
	store.failUpdate = true
	store.mu.Unlock()

	time.Sleep(25 * time.Millisecond)
	if m.State() != StateHeld {
		t.Fatalf("failed refresh must not drop the lease, got %s", m.State())
	}
	m.Release(context.Background())
}

func TestReleaseToleratesDeleteFailure(t *testing.T) {
	store := newFakeStore()
	m := New(store, "bigip-1", Options{})
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	store.mu.Lock()
	store.failDelete = true
	store.mu.Unlock()

	m.Release(context.Background())
	if m.State() != StateUnlocked {
		t.Fatalf("release must reach unlocked even when delete fails, got %s", m.State())
	}
}

func TestReleaseWithoutHoldIsNoop(t *testing.T) {
	m := New(newFakeStore(), "bigip-1", Options{})
	m.Release(context.Background())
	if m.State() != StateUnlocked {
		t.Fatalf("expected unlocked, got %s", m.State())
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	store := newFakeStore()
	m := New(store, "bigip-1", Options{})
	for i := 0; i < 2; i++ {
		if err := m.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire #%d: %v", i+1, err)
		}
		m.Release(context.Background())
	}
}
