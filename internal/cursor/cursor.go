// Package cursor provides shared, forward-only sources of item IDs and the
// claim protocol workers use to draw from them.
package cursor

import (
	"errors"
	"sync"
	"sync/atomic"

	taste "github.com/eugener/tasteworker/internal"
)

// Claim takes the next ID from c. Exhaustion is a normal outcome and is
// reported as ok == false with a nil error; any other advance failure is
// returned as err.
func Claim(c taste.Cursor) (id int64, ok bool, err error) {
	id, err = c.Next()
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, taste.ErrExhausted):
		return 0, false, nil
	default:
		return 0, false, err
	}
}

// Iterator is a single-threaded ID source, such as a database row scanner.
type Iterator interface {
	Next() (int64, error)
}

// Locked makes an Iterator safe to share between workers by serializing
// every advance behind a mutex. The critical section is the advance call only.
type Locked struct {
	mu sync.Mutex
	it Iterator
}

// NewLocked wraps it for concurrent use.
func NewLocked(it Iterator) *Locked {
	return &Locked{it: it}
}

// Next advances the wrapped iterator under the lock.
func (l *Locked) Next() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.it.Next()
}

// Slice hands out the IDs of an owned slice using an atomic
// fetch-and-increment index. It needs no lock.
type Slice struct {
	ids  []int64
	next atomic.Int64
}

// NewSlice creates a cursor over ids. The slice must not be modified afterwards.
func NewSlice(ids []int64) *Slice {
	return &Slice{ids: ids}
}

// Next returns the next unclaimed ID or taste.ErrExhausted.
func (s *Slice) Next() (int64, error) {
	i := s.next.Add(1) - 1
	if i >= int64(len(s.ids)) {
		return 0, taste.ErrExhausted
	}
	return s.ids[i], nil
}

// Remaining returns the number of IDs not yet claimed.
func (s *Slice) Remaining() int {
	return max(0, len(s.ids)-int(s.next.Load()))
}

// Iter is a single-threaded Iterator over a slice, useful as the source of a Locked cursor.
type Iter struct {
	ids []int64
	pos int
}

// NewIter creates an Iterator over ids.
func NewIter(ids []int64) *Iter {
	return &Iter{ids: ids}
}

// Next returns the next ID or taste.ErrExhausted.
func (it *Iter) Next() (int64, error) {
	if it.pos >= len(it.ids) {
		return 0, taste.ErrExhausted
	}
	id := it.ids[it.pos]
	it.pos++
	return id, nil
}
