package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sales-copilot/internal/domain"
)

const (
	defaultWriterBuffer = 64
	writeTimeout        = 10 * time.Second
)

// ErrWriterClosed is returned by Enqueue after Close.
var ErrWriterClosed = errors.New("repository: writer closed")

// SessionUpdater applies one partial session update.
type SessionUpdater interface {
	UpdateSession(ctx context.Context, sessionID string, patch domain.SessionPatch) (domain.Session, error)
}

type writeJob struct {
	sessionID string
	patch     domain.SessionPatch
	barrier   chan struct{}
}

// Writer applies session patches in the order they were enqueued on a single
// goroutine. Callers do not wait for the write; failures are logged. Since
// there is one writer per process and jobs run in order, the last patch to
// touch a field wins.
type Writer struct {
	store SessionUpdater
	log   *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan writeJob
	done   chan struct{}
}

func NewWriter(store SessionUpdater, buffer int, log *slog.Logger) (*Writer, error) {
	if store == nil {
		return nil, errors.New("repository: writer store must not be nil")
	}
	if buffer <= 0 {
		buffer = defaultWriterBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Writer{
		store: store,
		log:   log,
		queue: make(chan writeJob, buffer),
		done:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Enqueue schedules a patch. Empty patches are dropped.
func (w *Writer) Enqueue(sessionID string, patch domain.SessionPatch) error {
	if patch.Empty() {
		return nil
	}
	return w.send(writeJob{sessionID: sessionID, patch: patch})
}

// Flush waits until every patch enqueued before the call has been applied.
func (w *Writer) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := w.send(writeJob{barrier: barrier}); err != nil {
		return err
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting patches and waits for the queue to drain.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) send(job writeJob) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.queue <- job
	return nil
}

func (w *Writer) run() {
	defer close(w.done)
	for job := range w.queue {
		if job.barrier != nil {
			close(job.barrier)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		_, err := w.store.UpdateSession(ctx, job.sessionID, job.patch)
		cancel()
		if err != nil {
			w.log.Error("session write failed", "session_id", job.sessionID, "err", err)
		}
	}
}
