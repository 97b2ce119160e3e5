package attempt

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketmosaic/authcore/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestGuard(cfg Config) *Guard {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Duration == 0 {
		cfg.Duration = 30 * time.Minute
	}
	return NewGuard(store.NewMemory(), cfg, testLogger())
}

func TestGuardLocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(Config{})

	for i := 0; i < 4; i++ {
		g.RecordFailure(ctx, "alice")
		if locked, err := g.IsLocked(ctx, "alice"); err != nil || locked {
			t.Fatalf("locked after %d failures: %v, %v", i+1, locked, err)
		}
	}

	g.RecordFailure(ctx, "alice")
	locked, err := g.IsLocked(ctx, "alice")
	if err != nil || !locked {
		t.Fatalf("expected lockout after 5 failures, got %v, %v", locked, err)
	}

	until, ok := g.LockoutTime(ctx, "alice")
	if !ok {
		t.Fatal("expected a lockout deadline")
	}
	if d := time.Until(until); d < 29*time.Minute || d > 31*time.Minute {
		t.Fatalf("lockout deadline off by too much: %v", d)
	}
}

func TestGuardAccountsAreIndependent(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(Config{})

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, "alice")
	}

	if locked, _ := g.IsLocked(ctx, "bob"); locked {
		t.Fatal("lockout must not leak across accounts")
	}
}

func TestGuardSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(Config{})

	for i := 0; i < 4; i++ {
		g.RecordFailure(ctx, "alice")
	}
	g.RecordSuccess(ctx, "alice")

	// The count restarts from zero, so four more failures stay short of
	// the threshold.
	for i := 0; i < 4; i++ {
		g.RecordFailure(ctx, "alice")
	}
	if locked, err := g.IsLocked(ctx, "alice"); err != nil || locked {
		t.Fatalf("expected reset counter, got locked=%v, %v", locked, err)
	}
}

func TestGuardLockoutExpires(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(Config{MaxAttempts: 2, Duration: 20 * time.Millisecond})

	g.RecordFailure(ctx, "alice")
	g.RecordFailure(ctx, "alice")
	if locked, _ := g.IsLocked(ctx, "alice"); !locked {
		t.Fatal("expected lockout")
	}

	time.Sleep(40 * time.Millisecond)
	if locked, err := g.IsLocked(ctx, "alice"); err != nil || locked {
		t.Fatalf("expected lockout to lapse, got %v, %v", locked, err)
	}
	if _, ok := g.LockoutTime(ctx, "alice"); ok {
		t.Fatal("expected no deadline after the window lapsed")
	}
}

func TestGuardClearUnlocks(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(Config{MaxAttempts: 2})

	g.RecordFailure(ctx, "alice")
	g.RecordFailure(ctx, "alice")
	if locked, _ := g.IsLocked(ctx, "alice"); !locked {
		t.Fatal("expected lockout")
	}

	g.Clear(ctx, "alice")
	if locked, err := g.IsLocked(ctx, "alice"); err != nil || locked {
		t.Fatalf("expected clear to unlock, got %v, %v", locked, err)
	}
}

// brokenStore fails every operation, standing in for an unreachable
// backend.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, store.ErrUnavailable
}
func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return store.ErrUnavailable
}
func (brokenStore) Delete(context.Context, string) error { return store.ErrUnavailable }
func (brokenStore) IncrementWithTTL(context.Context, string, time.Duration) (int64, error) {
	return 0, store.ErrUnavailable
}
func (brokenStore) AddSetMember(context.Context, string, string, time.Duration) error {
	return store.ErrUnavailable
}
func (brokenStore) RemoveSetMember(context.Context, string, string) error {
	return store.ErrUnavailable
}
func (brokenStore) SetMembers(context.Context, string) ([]string, error) {
	return nil, store.ErrUnavailable
}
func (brokenStore) Purge(context.Context) error { return store.ErrUnavailable }

func TestGuardFailClosedSurfacesStoreError(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(brokenStore{}, Config{MaxAttempts: 5, Duration: 30 * time.Minute}, testLogger())

	if _, err := g.IsLocked(ctx, "alice"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected store error in fail-closed mode, got %v", err)
	}
}

func TestGuardFailOpenAnswersUnlocked(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(brokenStore{}, Config{MaxAttempts: 5, Duration: 30 * time.Minute, FailOpen: true}, testLogger())

	locked, err := g.IsLocked(ctx, "alice")
	if err != nil || locked {
		t.Fatalf("expected fail-open unlocked answer, got %v, %v", locked, err)
	}

	// Recording against a broken store must not panic or error out.
	g.RecordFailure(ctx, "alice")
	g.Clear(ctx, "alice")
}

func TestGuardCorruptLockoutRecordDropped(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	g := NewGuard(st, Config{MaxAttempts: 5, Duration: 30 * time.Minute}, testLogger())

	if err := st.Set(ctx, "lk:alice", "not-a-timestamp", time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if locked, err := g.IsLocked(ctx, "alice"); err != nil || locked {
		t.Fatalf("corrupt record must read as unlocked, got %v, %v", locked, err)
	}
	if _, ok, _ := st.Get(ctx, "lk:alice"); ok {
		t.Fatal("expected corrupt record dropped")
	}
}
