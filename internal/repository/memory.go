package repository

import (
	"context"
	"sync"
	"time"

	"hotelbook/internal/domain"
)

type memoryLock struct {
	owner     string
	expiresAt time.Time
}

// MemoryRoomLocker is a single-process RoomLocker for tests and local runs
// without redis. Locks expire after ttl like their redis counterparts.
type MemoryRoomLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryRoomLocker(ttl time.Duration) *MemoryRoomLocker {
	return &MemoryRoomLocker{
		locks: make(map[string]memoryLock),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (l *MemoryRoomLocker) Acquire(_ context.Context, key domain.RoomLockKey, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := LockKey(key)
	now := l.now()
	if held, ok := l.locks[k]; ok && now.Before(held.expiresAt) {
		return false, nil
	}
	l.locks[k] = memoryLock{owner: owner, expiresAt: now.Add(l.ttl)}
	return true, nil
}

func (l *MemoryRoomLocker) Release(_ context.Context, key domain.RoomLockKey, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := LockKey(key)
	if held, ok := l.locks[k]; ok && (owner == "" || held.owner == owner) {
		delete(l.locks, k)
	}
	return nil
}

// Owner returns the current holder of key, if any.
func (l *MemoryRoomLocker) Owner(key domain.RoomLockKey) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.locks[LockKey(key)]
	if !ok || !l.now().Before(held.expiresAt) {
		return "", false
	}
	return held.owner, true
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryRateLimiter is the in-process fallback for RedisRateLimiter.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{entries: make(map[string]*rateLimitEntry)}
}

func (r *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry, ok := r.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.entries[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}
