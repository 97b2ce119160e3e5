package store

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

const memoryShards = 32

// Memory is an in-process TTLStore. State is split across fixed shards,
// each guarded by its own mutex, so contention on one key never blocks
// unrelated keys on other shards. Expired entries are dropped lazily on
// access and eagerly by Purge.
type Memory struct {
	shards [memoryShards]memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	value     string
	counter   int64
	members   map[string]time.Time // member -> eviction instant
	expiresAt time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	m := &Memory{now: time.Now}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*memoryEntry)
	}
	return m
}

func (m *Memory) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%memoryShards]
}

// live returns the entry for key if present and unexpired, evicting it
// otherwise. Caller must hold the shard lock.
func (s *memoryShard) live(key string, now time.Time) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key, m.now())
	if e == nil || e.members != nil {
		return "", false, nil
	}
	if e.value == "" && e.counter != 0 {
		return strconv.FormatInt(e.counter, 10), true, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		value:     value,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (m *Memory) IncrementWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := m.now()
	e := s.live(key, now)
	if e == nil {
		e = &memoryEntry{counter: 1, expiresAt: now.Add(ttl)}
		s.entries[key] = e
		return 1, nil
	}
	e.counter++
	return e.counter, nil
}

func (m *Memory) AddSetMember(_ context.Context, key, member string, ttl time.Duration) error {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := m.now()
	e := s.live(key, now)
	if e == nil || e.members == nil {
		e = &memoryEntry{members: make(map[string]time.Time)}
		s.entries[key] = e
	}
	eviction := now.Add(ttl)
	e.members[member] = eviction
	// The set as a whole lives as long as its longest-lived member.
	if eviction.After(e.expiresAt) {
		e.expiresAt = eviction
	}
	return nil
}

func (m *Memory) RemoveSetMember(_ context.Context, key, member string) error {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key, m.now())
	if e == nil || e.members == nil {
		return nil
	}
	delete(e.members, member)
	if len(e.members) == 0 {
		delete(s.entries, key)
	}
	return nil
}

func (m *Memory) SetMembers(_ context.Context, key string) ([]string, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := m.now()
	e := s.live(key, now)
	if e == nil || e.members == nil {
		return nil, nil
	}

	members := make([]string, 0, len(e.members))
	for member, eviction := range e.members {
		if now.After(eviction) {
			delete(e.members, member)
			continue
		}
		members = append(members, member)
	}
	if len(e.members) == 0 {
		delete(s.entries, key)
	}
	return members, nil
}

func (m *Memory) Purge(_ context.Context) error {
	now := m.now()
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for key, e := range s.entries {
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				delete(s.entries, key)
				continue
			}
			if e.members == nil {
				continue
			}
			for member, eviction := range e.members {
				if now.After(eviction) {
					delete(e.members, member)
				}
			}
			if len(e.members) == 0 {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
	return nil
}
