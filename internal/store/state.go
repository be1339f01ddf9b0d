package store

import (
	"errors"
	"sync"
	"time"
)

// Errors returned by State's operations. Request Engine handlers map
// these onto HTTP status codes and JSON error bodies.
var (
	// ErrLockTimeout means LockTimeout elapsed before the store's lock
	// could be acquired.
	ErrLockTimeout = errors.New("server error: lock acquisition timed out")

	// ErrNotFound means the key is absent, or present but tombstoned.
	ErrNotFound = errors.New("key not found")

	// ErrIdempotencyConflict means the Idempotency-Key was already used
	// for a different method or key path.
	ErrIdempotencyConflict = errors.New("idempotency key was already used for a different method or key path")
)

// State is the single shared mutable unit behind transdb: a flat
// key→Entry map, a global monotonic version counter, and an
// idempotency-token cache, protected by one reader-writer lock.
//
// All three fields are mutated together under a single write-lock
// acquisition per request; no caller ever observes the counter having
// advanced without the corresponding store mutation, or vice versa.
type State struct {
	mu sync.RWMutex

	entries     map[string]Entry
	idempotency map[string]IdempotencyRecord
	nextVersion uint64

	clock        Clock
	lockTimeout  time.Duration
	tombstoneTTL time.Duration
}

// Option configures a State at construction time. The zero-value
// defaults match the spec's fixed constants; operators that need to
// tune them (e.g. a looser lock timeout under known contention) pass an
// Option rather than recompiling.
type Option func(*State)

// WithLockTimeout overrides LockTimeout for this State.
func WithLockTimeout(d time.Duration) Option {
	return func(s *State) { s.lockTimeout = d }
}

// WithTombstoneTTL overrides TombstoneTTL for this State.
func WithTombstoneTTL(d time.Duration) Option {
	return func(s *State) { s.tombstoneTTL = d }
}

// withClock overrides the clock; unexported because only tests need it,
// via NewWithClock.
func withClock(clock Clock) Option {
	return func(s *State) { s.clock = clock }
}

// New returns an empty State using the system wall clock.
func New(opts ...Option) *State {
	s := &State{
		entries:      make(map[string]Entry),
		idempotency:  make(map[string]IdempotencyRecord),
		clock:        SystemClock{},
		lockTimeout:  LockTimeout,
		tombstoneTTL: TombstoneTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewWithClock returns an empty State using the given clock, for tests
// that need deterministic TTL behavior.
func NewWithClock(clock Clock, opts ...Option) *State {
	return New(append([]Option{withClock(clock)}, opts...)...)
}

// withReadLock and withWriteLock bound lock acquisition by LockTimeout.
// sync.RWMutex has no timed-acquire, so the attempt runs in a goroutine
// racing a timer, the same shape the teacher's request-timeout
// middleware uses to bound a handler against a context deadline. If the
// timer wins, the goroutine is left to acquire and immediately release
// the lock on its own once it eventually gets it, so a slow-but-not-stuck
// holder never wedges later acquisitions.
func (s *State) withReadLock(fn func()) error {
	acquired := make(chan struct{})
	go func() {
		s.mu.RLock()
		close(acquired)
	}()
	select {
	case <-acquired:
		defer s.mu.RUnlock()
		fn()
		return nil
	case <-time.After(s.lockTimeout):
		go func() {
			<-acquired
			s.mu.RUnlock()
		}()
		return ErrLockTimeout
	}
}

func (s *State) withWriteLock(fn func()) error {
	acquired := make(chan struct{})
	go func() {
		s.mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		defer s.mu.Unlock()
		fn()
		return nil
	case <-time.After(s.lockTimeout):
		go func() {
			<-acquired
			s.mu.Unlock()
		}()
		return ErrLockTimeout
	}
}

// GetResult is a snapshot of a live or expired entry, copied out of the
// locked region.
type GetResult struct {
	Value   []byte
	Version uint64
	Expired bool
}

// Get looks up key. It returns ErrNotFound if the key is absent or the
// current entry is a tombstone; otherwise it returns a copy of the
// entry's value and version, with Expired set per Entry.IsExpired.
func (s *State) Get(key string) (GetResult, error) {
	var (
		result GetResult
		outErr error
	)
	err := s.withReadLock(func() {
		entry, ok := s.entries[key]
		if !ok || entry.Tombstone {
			outErr = ErrNotFound
			return
		}
		now := s.clock.UnixNowSecs()
		value := make([]byte, len(entry.Value))
		copy(value, entry.Value)
		result = GetResult{Value: value, Version: entry.Version, Expired: entry.IsExpired(now)}
	})
	if err != nil {
		return GetResult{}, err
	}
	return result, outErr
}

// PutResult reports the outcome of a Put call.
type PutResult struct {
	Version  uint64
	Replayed bool
}

// Put writes value at key under a global version, unless idempotencyKey
// has already been used for a PUT on this key (in which case the first
// write's version is replayed with no state change). ttl is the
// absolute Unix-epoch second the new entry expires at, or nil.
func (s *State) Put(key string, value []byte, ttl *int64, idempotencyKey string) (PutResult, error) {
	var (
		result PutResult
		outErr error
	)
	err := s.withWriteLock(func() {
		if record, ok := s.idempotency[idempotencyKey]; ok {
			if record.Method != MethodPut || record.Key != key {
				outErr = ErrIdempotencyConflict
				return
			}
			result = PutResult{Version: record.ETag, Replayed: true}
			return
		}

		s.nextVersion++
		version := s.nextVersion

		stored := make([]byte, len(value))
		copy(stored, value)
		s.entries[key] = Entry{Value: stored, Version: version, ExpiresAt: ttl}

		s.idempotency[idempotencyKey] = IdempotencyRecord{
			Method:    MethodPut,
			Key:       key,
			ETag:      version,
			CreatedAt: time.Now(),
		}
		result = PutResult{Version: version, Replayed: false}
	})
	if err != nil {
		return PutResult{}, err
	}
	return result, outErr
}

// DeleteResult reports the outcome of a Delete call. Tombstoned is false
// when the key was already absent or tombstoned (a 204 no-op); true when
// a live entry was replaced with a tombstone (a 200 with the new ETag).
type DeleteResult struct {
	Tombstoned bool
	Version    uint64
}

// Delete tombstones the live entry at key, unless idempotencyKey has
// already been used for a DELETE on this key (in which case the first
// delete's outcome is replayed). A DELETE on an absent or already
// tombstoned key is a no-op and is deliberately not recorded under
// idempotencyKey: replaying it again just repeats the same no-op.
func (s *State) Delete(key string, idempotencyKey string) (DeleteResult, error) {
	var (
		result DeleteResult
		outErr error
	)
	err := s.withWriteLock(func() {
		if record, ok := s.idempotency[idempotencyKey]; ok {
			if record.Method != MethodDelete || record.Key != key {
				outErr = ErrIdempotencyConflict
				return
			}
			// Only write-producing deletes are ever recorded.
			result = DeleteResult{Tombstoned: true, Version: record.ETag}
			return
		}

		entry, ok := s.entries[key]
		if !ok || entry.Tombstone {
			result = DeleteResult{Tombstoned: false}
			return
		}

		s.nextVersion++
		version := s.nextVersion
		expiresAt := s.clock.UnixNowSecs() + int64(s.tombstoneTTL/time.Second)
		s.entries[key] = Entry{Tombstone: true, Version: version, ExpiresAt: &expiresAt}

		s.idempotency[idempotencyKey] = IdempotencyRecord{
			Method:    MethodDelete,
			Key:       key,
			ETag:      version,
			CreatedAt: time.Now(),
		}
		result = DeleteResult{Tombstoned: true, Version: version}
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return result, outErr
}
