//go:build !unix

package mmap

import (
	"errors"
	"io"
	"os"
)

// Without mmap the region lives on the Go heap. Heap allocations of this size
// are at least 16-byte aligned; the allocator trims any excess.
func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), nil, nil
}

// File-backed regions are read into memory and written back on sync.
func osMapFile(f *os.File, size int) ([]byte, func([]byte) error, func([]byte) error, error) {
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, nil, err
	}
	name := f.Name()
	writeBack := func(b []byte) error { return os.WriteFile(name, b, 0o644) }
	return data, writeBack, nil, nil
}
