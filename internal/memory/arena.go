// Package memory provides the engine's scratch allocator (Arena),
// bucketed buffer pool, and global/per-database usage accounting.
package memory

import (
	"sync"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
)

// Arena is a caller-owned scratch allocator for one operation's output
// buffers: value tapes, offset arrays, length arrays, presence
// bitmaps. It grows linearly by borrowing from a shared BufferPool and
// returns everything to the pool on Reset, unless told to keep its
// prior outputs alive (the "dont_discard_memory" option). maxBytes
// bounds how much one arena may hold allocated at once; past that,
// Alloc fails with ErrOutOfMemory instead of growing unbounded.
type Arena struct {
	mu       sync.Mutex
	buffers  [][]byte
	pool     *BufferPool
	maxBytes uint64
	used     uint64
}

func NewArena(pool *BufferPool, maxBytes uint64) *Arena {
	return &Arena{
		buffers:  make([][]byte, 0),
		pool:     pool,
		maxBytes: maxBytes,
	}
}

// Alloc returns a byte range of at least the requested size, tracked
// for release on the arena's next discarding Reset.
func (a *Arena) Alloc(size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxBytes > 0 && a.used+size > a.maxBytes {
		return nil, kverrors.ErrOutOfMemory
	}

	buf := a.pool.Get(size)
	a.buffers = append(a.buffers, buf)
	a.used += size
	return buf, nil
}

// Reset returns the arena's buffers to the pool and clears its
// tracking list, unless discard is false, in which case outputs from
// the prior operation remain valid (dont_discard_memory).
func (a *Arena) Reset(discard bool) {
	if !discard {
		return
	}
	a.Release()
}

// Release returns every tracked buffer to the pool. Safe to call on
// an arena about to go out of scope.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, buf := range a.buffers {
		a.pool.Put(buf)
	}
	a.buffers = nil
	a.used = 0
}

// Size reports the number of live allocations tracked by the arena.
func (a *Arena) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}
