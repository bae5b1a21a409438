package cursor

import (
	"context"

	taste "github.com/eugener/tasteworker/internal"
)

// Chan is a channel-backed cursor fed by a single producer goroutine and
// drained by any number of workers. Channel receive gives exactly-once delivery.
type Chan struct {
	ch   chan int64
	done chan struct{}
	err  error
}

// Producer emits IDs by calling yield until it returns false or the source ends.
type Producer func(ctx context.Context, yield func(id int64) bool) error

// NewChan starts produce in a goroutine and returns a cursor over its output.
// The cursor reports taste.ErrExhausted once the producer returns, or once ctx
// is cancelled and the buffer is drained.
func NewChan(ctx context.Context, buffer int, produce Producer) *Chan {
	c := &Chan{
		ch:   make(chan int64, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		defer close(c.ch)
		c.err = produce(ctx, func(id int64) bool {
			select {
			case c.ch <- id:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return c
}

// FromSlice returns a Producer that emits ids in order.
func FromSlice(ids []int64) Producer {
	return func(_ context.Context, yield func(int64) bool) error {
		for _, id := range ids {
			if !yield(id) {
				return nil
			}
		}
		return nil
	}
}

// Next receives the next ID or reports taste.ErrExhausted after the producer closes.
func (c *Chan) Next() (int64, error) {
	id, ok := <-c.ch
	if !ok {
		return 0, taste.ErrExhausted
	}
	return id, nil
}

// Err waits for the producer to finish and returns its error.
func (c *Chan) Err() error {
	<-c.done
	return c.err
}
