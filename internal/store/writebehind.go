package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/powens/tinyretro/internal/board"
)

const saveAttemptTimeout = 5 * time.Second

// Health describes the state of the write-behind queue.
type Health struct {
	LastSavedAt         time.Time
	LastError           string
	ConsecutiveFailures int
	Saves               uint64
}

// Healthy reports whether the most recent save succeeded (or none has failed yet).
func (h Health) Healthy() bool {
	return h.ConsecutiveFailures == 0
}

// WriteBehind saves boards through a Gateway on its own goroutine. Pending
// boards coalesce: if several mutations land while a save is in flight, only
// the newest board is written next.
type WriteBehind struct {
	gateway    Gateway
	pending    chan *board.Board
	retries    int
	retryDelay time.Duration
	done       chan struct{}

	mu     sync.Mutex
	health Health
}

// NewWriteBehind creates a queue that retries each failed save up to retries
// times, doubling retryDelay between attempts.
func NewWriteBehind(gateway Gateway, retries int, retryDelay time.Duration) *WriteBehind {
	if retries < 0 {
		retries = 0
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &WriteBehind{
		gateway:    gateway,
		pending:    make(chan *board.Board, 1),
		retries:    retries,
		retryDelay: retryDelay,
		done:       make(chan struct{}),
	}
}

// Enqueue replaces any pending board with b. It never blocks on storage.
func (w *WriteBehind) Enqueue(b *board.Board) {
	for {
		select {
		case w.pending <- b:
			return
		default:
		}
		select {
		case <-w.pending:
		default:
		}
	}
}

// Run saves pending boards until ctx is cancelled, then makes one final
// attempt to save whatever is still pending.
func (w *WriteBehind) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case b := <-w.pending:
			w.save(b, ctx.Done())
		case <-ctx.Done():
			w.flush()
			return
		}
	}
}

// Done is closed once Run has returned.
func (w *WriteBehind) Done() <-chan struct{} {
	return w.done
}

// Health returns a copy of the current queue health.
func (w *WriteBehind) Health() Health {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.health
}

func (w *WriteBehind) flush() {
	select {
	case b := <-w.pending:
		w.save(b, nil)
	default:
	}
}

// save writes b with retries. A close of stop abandons the retry wait and
// puts b back in the queue unless something newer is already there.
func (w *WriteBehind) save(b *board.Board, stop <-chan struct{}) {
	delay := w.retryDelay
	var err error

	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-stop:
				w.requeue(b)
				w.recordFailure(err)
				return
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), saveAttemptTimeout)
		err = w.gateway.Save(ctx, b)
		cancel()
		if err == nil {
			w.recordSuccess()
			return
		}
		slog.Warn("board save failed", "attempt", attempt+1, "err", err)
	}

	slog.Error("giving up on board save", "attempts", w.retries+1, "err", err)
	w.recordFailure(err)
}

func (w *WriteBehind) requeue(b *board.Board) {
	select {
	case w.pending <- b:
	default:
	}
}

func (w *WriteBehind) recordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.health.LastSavedAt = time.Now()
	w.health.LastError = ""
	w.health.ConsecutiveFailures = 0
	w.health.Saves++
}

func (w *WriteBehind) recordFailure(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.health.LastError = err.Error()
	w.health.ConsecutiveFailures++
}
