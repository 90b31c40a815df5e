package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/powens/tinyretro/internal/board"
)

// ErrMutationAborted is returned when an action panicked part way through.
// The store stays usable; the board keeps whatever the action managed to do.
var ErrMutationAborted = errors.New("mutation aborted")

// Publisher receives the serialized board after every successful mutation.
// Publish is called while the store's write lock is held, so snapshots arrive
// in mutation order.
type Publisher interface {
	Publish(snapshot []byte)
}

// Persister receives a private copy of the board after every successful
// mutation. Enqueue must not block on I/O.
type Persister interface {
	Enqueue(b *board.Board)
}

// Store owns the single live board. Reads share a read lock; each mutation
// holds the write lock for validation, application, serialization and
// hand-off to the publisher and persister.
type Store struct {
	mu        sync.RWMutex
	board     *board.Board
	version   uint64
	aborted   bool
	publisher Publisher
	persister Persister

	recoveries atomic.Uint64
}

// New wraps initial in a Store. publisher and persister may be nil.
func New(initial *board.Board, publisher Publisher, persister Persister) *Store {
	if initial == nil {
		initial = board.Default()
	}
	initial.Normalize()
	return &Store{
		board:     initial,
		publisher: publisher,
		persister: persister,
	}
}

// Load reads the stored board through gw, falling back to the default board
// when nothing is stored or the stored document cannot be read.
func Load(ctx context.Context, gw Gateway) *board.Board {
	b, err := gw.Load(ctx)
	switch {
	case err == nil:
		slog.Info("loaded board", "title", b.Title, "lanes", len(b.Lanes))
		return b
	case errors.Is(err, ErrNoDocument):
		slog.Info("no stored board, seeding default")
	default:
		slog.Error("failed to load board, seeding default", "err", err)
	}
	return board.Default()
}

// Mutate applies action under exclusive access. On success the new snapshot
// is published and queued for persistence before the lock is released. On
// failure the board is unchanged and nothing is published.
func (s *Store) Mutate(action board.Action) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aborted {
		s.aborted = false
		s.recoveries.Add(1)
		slog.Warn("recovering board after aborted mutation", "version", s.version)
	}

	defer func() {
		if r := recover(); r != nil {
			s.aborted = true
			slog.Error("mutation panicked", "action", action.Kind(), "panic", r)
			err = fmt.Errorf("%w: %s: %v", ErrMutationAborted, action.Kind(), r)
		}
	}()

	if err := action.Apply(s.board); err != nil {
		return err
	}
	s.version++

	snapshot, err := json.Marshal(s.board)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if s.persister != nil {
		s.persister.Enqueue(s.board.Clone())
	}
	if s.publisher != nil {
		s.publisher.Publish(snapshot)
	}
	return nil
}

// View serializes the board and calls fn with the result while still holding
// the read lock. No mutation can be published until fn returns.
func (s *Store) View(fn func(snapshot []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, err := json.Marshal(s.board)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return fn(snapshot)
}

// Snapshot returns a deep copy of the current board.
func (s *Store) Snapshot() *board.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board.Clone()
}

// SnapshotJSON returns the current board in its wire form.
func (s *Store) SnapshotJSON() ([]byte, error) {
	var out []byte
	err := s.View(func(snapshot []byte) error {
		out = snapshot
		return nil
	})
	return out, err
}

// Version is the number of successful mutations since the store was created.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Recoveries counts how many times the store resumed after an aborted mutation.
func (s *Store) Recoveries() uint64 {
	return s.recoveries.Load()
}
