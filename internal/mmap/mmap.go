// Package mmap provides off-heap buffers for allocator arenas: anonymous
// private mappings, and file-backed shared mappings that persist an arena.
package mmap

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned when using a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for a non-positive or oversized length.
	ErrInvalidSize = errors.New("mmap: invalid size")
)

// Mapping owns a mapped region and unmaps it on Close.
type Mapping struct {
	data   []byte
	closed atomic.Bool
	sync   func([]byte) error
	unmap  func([]byte) error
}

// MapAnon maps size bytes of zeroed, private, read-write memory outside the Go
// heap. The region is page-aligned.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 || uint64(size) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	data, unmap, err := osMapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("mmap: anonymous mapping of %d bytes: %w", size, err)
	}
	return &Mapping{data: data, unmap: unmap}, nil
}

// MapFile maps the file at path read-write, creating it or resizing it to
// size bytes first. Writes reach the file on Sync or Close.
func MapFile(path string, size int) (*Mapping, error) {
	if size <= 0 || uint64(size) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close() // the mapping keeps the pages alive

	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("mmap: resize %s: %w", path, err)
	}
	data, syncFn, unmap, err := osMapFile(f, size)
	if err != nil {
		return nil, fmt.Errorf("mmap: map %s: %w", path, err)
	}
	return &Mapping{data: data, sync: syncFn, unmap: unmap}, nil
}

// Bytes returns the mapped region, or nil once closed. The slice must not be
// used after Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the mapped length.
func (m *Mapping) Size() int { return len(m.data) }

// Sync flushes a file-backed mapping. It is a no-op for anonymous mappings.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.sync == nil {
		return nil
	}
	return m.sync(m.data)
}

// Close flushes and unmaps the region. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	var err error
	if m.sync != nil {
		err = m.sync(m.data)
	}
	if m.unmap != nil {
		err = errors.Join(err, m.unmap(m.data))
	}
	return err
}
