package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/deadpool/alloc"
	"github.com/joshuapare/deadpool/internal/logger"
	"github.com/joshuapare/deadpool/internal/mmap"
)

// arenaFlags are shared by every command that builds an arena.
type arenaFlags struct {
	size    string
	align   int
	mmap    bool
	backing string
	check   bool
}

func (f *arenaFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.size, "arena", "1MiB", "Arena size (e.g. 4096, 64KiB, 1MiB)")
	cmd.Flags().IntVar(&f.align, "align", alloc.MaxAlign, "Payload alignment, a power of two in [8, 4096]")
	cmd.Flags().BoolVar(&f.mmap, "mmap", false, "Back the arena with an anonymous mapping instead of the Go heap")
	cmd.Flags().StringVar(&f.backing, "backing", "", "Back the arena with a shared mapping of this file")
	cmd.Flags().BoolVar(&f.check, "check", false, "Self-check the free list after every free")
}

// arena is an allocator together with the buffer that backs it.
type arena struct {
	*alloc.ArenaAllocator
	source string
	close  func() error
}

func (f *arenaFlags) open() (*arena, error) {
	size, err := parseSize(f.size)
	if err != nil {
		return nil, err
	}
	if f.mmap && f.backing != "" {
		return nil, fmt.Errorf("--mmap and --backing are mutually exclusive")
	}

	var (
		buf    []byte
		source = "heap"
		closer = func() error { return nil }
	)
	switch {
	case f.backing != "":
		m, err := mmap.MapFile(f.backing, size)
		if err != nil {
			return nil, err
		}
		buf, source, closer = m.Bytes(), "file:"+f.backing, m.Close
	case f.mmap:
		m, err := mmap.MapAnon(size)
		if err != nil {
			return nil, err
		}
		buf, source, closer = m.Bytes(), "mmap", m.Close
	default:
		buf = make([]byte, size)
	}

	a, err := alloc.NewArena(buf, &alloc.Options{
		Alignment: f.align,
		Logger:    alloc.SlogLogger(logger.L),
		SelfCheck: f.check,
		Stats:     true,
	})
	if err != nil {
		_ = closer()
		return nil, err
	}
	printVerbose("Arena: %s bytes (%s), base %d, alignment %d, header %d\n",
		count(a.Capacity()), source, a.Base(), a.Alignment(), a.HeaderSize())
	return &arena{ArenaAllocator: a, source: source, close: closer}, nil
}
