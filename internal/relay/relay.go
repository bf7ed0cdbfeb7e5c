// Package relay provides the bounded queues that decouple chunk arrival from
// the streaming transcription backend. One audio relay and one transcript
// relay exist per session; neither is ever shared across sessions.
package relay

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("relay is closed")

const (
	// AudioCapacity bounds buffered audio frames per session.
	AudioCapacity = 100
	// TranscriptCapacity bounds buffered transcript events per session.
	TranscriptCapacity = 50
	// AudioWarnDepth is the backlog depth at which producers should log.
	AudioWarnDepth = 50
)

// Relay is a bounded producer/consumer queue with an explicit close sentinel.
// Enqueue blocks when the queue is at capacity (backpressure); after Close,
// Enqueue fails immediately and Dequeue drains remaining values before
// reporting end of stream.
type Relay[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

func New[T any](capacity int) *Relay[T] {
	return &Relay[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue adds a value, blocking while the relay is at capacity.
func (r *Relay[T]) Enqueue(ctx context.Context, v T) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	select {
	case r.ch <- v:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the next value. ok is false once the relay has been closed
// and fully drained; that is the consumer's shutdown sentinel.
func (r *Relay[T]) Dequeue(ctx context.Context) (v T, ok bool, err error) {
	var zero T
	select {
	case v := <-r.ch:
		return v, true, nil
	default:
	}
	select {
	case v := <-r.ch:
		return v, true, nil
	case <-r.done:
		select {
		case v := <-r.ch:
			return v, true, nil
		default:
			return zero, false, nil
		}
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// Close delivers the shutdown sentinel. Safe to call more than once.
func (r *Relay[T]) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// Len reports the current backlog depth.
func (r *Relay[T]) Len() int {
	return len(r.ch)
}

// Cap reports the hard capacity.
func (r *Relay[T]) Cap() int {
	return cap(r.ch)
}
