package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// ErrWorkerClosed is returned by Do once Close has been called.
var ErrWorkerClosed = errors.New("db worker closed")

type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Worker serializes write transactions onto one goroutine. Each Do call is
// one transaction: it commits when fn returns nil and rolls back otherwise,
// including when the caller's context is cancelled mid-flight.
type Worker struct {
	db   *sql.DB
	jobs chan job
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan job, 256),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close stops accepting jobs, runs the ones already queued and waits for
// the loop to exit. Safe to call more than once.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.quit) })
	<-w.done
}

func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	select {
	case <-w.quit:
		return ErrWorkerClosed
	default:
	}

	ch := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, ch: ch}

	select {
	case w.jobs <- j:
	case <-w.quit:
		return ErrWorkerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// The loop always finishes a job it picked up; if the caller gives up
	// first the result lands in the buffered ch and is dropped.
	select {
	case err := <-ch:
		return err
	case <-w.done:
		select {
		case err := <-ch:
			return err
		default:
			return ErrWorkerClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for {
		select {
		case j := <-w.jobs:
			w.run(j)
		case <-w.quit:
			for {
				select {
				case j := <-w.jobs:
					w.run(j)
				default:
					return
				}
			}
		}
	}
}

func (w *Worker) run(j job) {
	if err := j.ctx.Err(); err != nil {
		j.ch <- err
		return
	}

	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		j.ch <- err
		return
	}

	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		j.ch <- err
		return
	}

	j.ch <- tx.Commit()
}
