package alloc

import "sync"

// LockedAllocator serializes access to an ArenaAllocator so it can be shared
// between goroutines. The wrapped arena must not be used directly afterwards.
type LockedAllocator struct {
	mu sync.Mutex
	a  *ArenaAllocator
}

// NewLocked wraps a.
func NewLocked(a *ArenaAllocator) *LockedAllocator {
	return &LockedAllocator{a: a}
}

// Alloc implements Allocator.
func (l *LockedAllocator) Alloc(size int) (Ref, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Alloc(size)
}

// Free implements Allocator.
func (l *LockedAllocator) Free(ref Ref) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Free(ref)
}

// Fragmentation returns the arena's fragmentation ratio.
func (l *LockedAllocator) Fragmentation() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Fragmentation()
}

// Available returns the arena's free payload bytes.
func (l *LockedAllocator) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Available()
}

// Stats returns a snapshot of the arena counters.
func (l *LockedAllocator) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Stats()
}

// Check validates the arena's free list.
func (l *LockedAllocator) Check() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Check()
}

var (
	_ Allocator = (*ArenaAllocator)(nil)
	_ Allocator = (*LockedAllocator)(nil)
)
