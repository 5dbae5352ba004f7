// Package waiter provides the blocking pause primitives used between
// reconciliation passes: a fixed sleeper, a backoff sleeper, and a
// filesystem-change watcher. All of them block and never busy-poll;
// cancelling the context always ends a wait immediately with ctx.Err().
package waiter

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Waiter blocks between reconciliation passes.
type Waiter interface {
	// Wait blocks until the next pass should run or ctx is cancelled.
	Wait(ctx context.Context) error
	// Ack tells the waiter the previous pass made progress, letting
	// adaptive implementations reset.
	Ack()
}

// Sleeper waits a fixed interval.
type Sleeper struct {
	Interval time.Duration
}

func (s Sleeper) Wait(ctx context.Context) error {
	d := s.Interval
	if d <= 0 {
		d = 5 * time.Second
	}
	return sleep(ctx, d)
}

func (Sleeper) Ack() {}

// Backoff doubles the delay after every wait, up to Max, and drops back to
// Min when Ack reports progress.
type Backoff struct {
	min, max time.Duration

	mu  sync.Mutex
	cur time.Duration
}

// NewBackoff returns a backoff waiter ranging from min to max.
func NewBackoff(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &Backoff{min: min, max: max}
}

func (b *Backoff) Wait(ctx context.Context) error {
	return sleep(ctx, b.next())
}

func (b *Backoff) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur == 0 {
		b.cur = b.min
	}
	d := b.cur
	if b.cur *= 2; b.cur > b.max {
		b.cur = b.max
	}
	return d
}

func (b *Backoff) Ack() {
	b.mu.Lock()
	b.cur = b.min
	b.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Watcher wakes as soon as the watched file changes. A liveness cap bounds
// every wait so a missed event cannot stall the loop forever.
type Watcher struct {
	path string
	cap  time.Duration
	fw   *fsnotify.Watcher
}

// NewWatcher watches the file at path via its parent directory, which
// also catches create/rename of the file itself.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, cap: time.Minute, fw: fw}, nil
}

func (w *Watcher) Wait(ctx context.Context) error {
	t := time.NewTimer(w.cap)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return errors.New("waiter: watch channel closed")
			}
			if ev.Name == w.path && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				return nil
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return errors.New("waiter: watch channel closed")
			}
			return err
		}
	}
}

func (w *Watcher) Ack() {}

// Close releases the underlying filesystem watch.
func (w *Watcher) Close() error { return w.fw.Close() }

// Best picks the cheapest workable waiter for a document location: a
// file-change watcher when the document is a local file, otherwise a
// backoff sleeper.
func Best(path string) Waiter {
	if path != "" {
		if w, err := NewWatcher(path); err == nil {
			return w
		}
	}
	return NewBackoff(time.Second, time.Minute)
}
