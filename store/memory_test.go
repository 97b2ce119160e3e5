package store

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing = %v, %v", ok, err)
	}

	if err := m.Set(ctx, "k", "v", time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || value != "v" {
		t.Fatalf("Get = %q, %v, %v", value, ok, err)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected key gone after delete")
	}
}

func TestMemoryLazyExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "k", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected entry to read as absent after TTL")
	}
}

func TestMemoryIncrementWithTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for want := int64(1); want <= 3; want++ {
		got, err := m.IncrementWithTTL(ctx, "c", 50*time.Millisecond)
		if err != nil || got != want {
			t.Fatalf("IncrementWithTTL = %d, %v; want %d", got, err, want)
		}
	}

	time.Sleep(80 * time.Millisecond)
	got, err := m.IncrementWithTTL(ctx, "c", 50*time.Millisecond)
	if err != nil || got != 1 {
		t.Fatalf("counter should restart after TTL, got %d, %v", got, err)
	}
}

func TestMemoryIncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := m.IncrementWithTTL(ctx, "c", time.Hour); err != nil {
					t.Errorf("IncrementWithTTL failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	got, err := m.IncrementWithTTL(ctx, "c", time.Hour)
	if err != nil || got != workers*perWorker+1 {
		t.Fatalf("final count = %d, %v; want %d", got, err, workers*perWorker+1)
	}
}

func TestMemorySetMembers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.AddSetMember(ctx, "s", "a", time.Hour); err != nil {
		t.Fatalf("AddSetMember failed: %v", err)
	}
	if err := m.AddSetMember(ctx, "s", "b", 20*time.Millisecond); err != nil {
		t.Fatalf("AddSetMember failed: %v", err)
	}
	// Idempotent re-add.
	if err := m.AddSetMember(ctx, "s", "a", time.Hour); err != nil {
		t.Fatalf("AddSetMember failed: %v", err)
	}

	members, err := m.SetMembers(ctx, "s")
	if err != nil {
		t.Fatalf("SetMembers failed: %v", err)
	}
	sort.Strings(members)
	if len(members) != 2 || members[0] != "a" || members[1] != "b" {
		t.Fatalf("unexpected members %v", members)
	}

	time.Sleep(40 * time.Millisecond)
	members, err = m.SetMembers(ctx, "s")
	if err != nil || len(members) != 1 || members[0] != "a" {
		t.Fatalf("expected only the long-lived member, got %v, %v", members, err)
	}

	if err := m.RemoveSetMember(ctx, "s", "a"); err != nil {
		t.Fatalf("RemoveSetMember failed: %v", err)
	}
	members, err = m.SetMembers(ctx, "s")
	if err != nil || len(members) != 0 {
		t.Fatalf("expected empty set, got %v, %v", members, err)
	}
}

func TestMemoryPurge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "live", "v", time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Set(ctx, "stale", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.AddSetMember(ctx, "s", "stale", 10*time.Millisecond); err != nil {
		t.Fatalf("AddSetMember failed: %v", err)
	}
	if err := m.AddSetMember(ctx, "s", "live", time.Hour); err != nil {
		t.Fatalf("AddSetMember failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if err := m.Purge(ctx); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	if _, ok, _ := m.Get(ctx, "live"); !ok {
		t.Fatal("purge must never remove a live entry")
	}
	if _, ok, _ := m.Get(ctx, "stale"); ok {
		t.Fatal("expected stale entry purged")
	}
	members, err := m.SetMembers(ctx, "s")
	if err != nil || len(members) != 1 || members[0] != "live" {
		t.Fatalf("expected only live member after purge, got %v, %v", members, err)
	}
}
