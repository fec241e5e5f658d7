package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/joshuapare/deadpool/alloc"
)

// ErrContentMismatch reports a payload whose bytes changed while it was live.
var ErrContentMismatch = errors.New("workload: payload content changed")

// Report summarizes one run.
type Report struct {
	Allocs            int           `json:"allocs"`
	Frees             int           `json:"frees"`
	FailedAllocs      int           `json:"failed_allocs"`
	PeakLive          int           `json:"peak_live"`
	PeakBytes         int           `json:"peak_bytes"`
	Fragmentation     float64       `json:"fragmentation"`
	PeakFragmentation float64       `json:"peak_fragmentation"`
	Digest            uint64        `json:"digest"`
	Duration          time.Duration `json:"duration"`
}

// Add accumulates o into r. Peaks take the maximum.
func (r *Report) Add(o Report) {
	r.Allocs += o.Allocs
	r.Frees += o.Frees
	r.FailedAllocs += o.FailedAllocs
	r.PeakLive = max(r.PeakLive, o.PeakLive)
	r.PeakBytes = max(r.PeakBytes, o.PeakBytes)
	r.Fragmentation = max(r.Fragmentation, o.Fragmentation)
	r.PeakFragmentation = max(r.PeakFragmentation, o.PeakFragmentation)
	r.Digest ^= o.Digest
	r.Duration = max(r.Duration, o.Duration)
}

type liveBlock struct {
	name string
	ref  alloc.Ref
	p    []byte
	sum  uint64
}

type fragmenter interface {
	Fragmentation() float64
}

// runner holds the state of one Run.
type runner struct {
	a     alloc.Allocator
	cfg   Config
	rng   *rand.Rand
	log   *slog.Logger
	frag  fragmenter
	bias  float64
	live  []liveBlock
	bytes int
	seq   int
	rep   Report
}

// Run executes cfg against a and frees every remaining block at the end. An
// allocation that fails with alloc.ErrNoSpace or alloc.ErrTooLarge is counted
// and skipped; any other allocator error, a failed free or a content mismatch
// aborts the run.
func Run(ctx context.Context, a alloc.Allocator, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}

	r := &runner{
		a:    a,
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		log:  cfg.Logger,
		bias: cfg.AllocBias,
	}
	if r.log == nil {
		r.log = slog.New(slog.DiscardHandler)
	}
	if r.bias == 0 {
		r.bias = 0.5
	}
	r.frag, _ = a.(fragmenter)

	start := time.Now()

	for i := range cfg.Ops {
		if err := ctx.Err(); err != nil {
			return r.rep, err
		}

		var err error
		if r.allocNext(i) {
			err = r.alloc()
		} else {
			err = r.free(r.rng.Intn(len(r.live)))
		}
		if err != nil {
			return r.rep, fmt.Errorf("workload: op %d: %w", i, err)
		}
		if err := r.verify(); err != nil {
			return r.rep, fmt.Errorf("workload: op %d: %w", i, err)
		}
		r.sample()
	}

	if r.frag != nil {
		r.rep.Fragmentation = r.frag.Fragmentation()
	}

	// Drain
	for len(r.live) > 0 {
		if err := r.free(len(r.live) - 1); err != nil {
			return r.rep, fmt.Errorf("workload: drain: %w", err)
		}
	}
	if err := r.verify(); err != nil {
		return r.rep, fmt.Errorf("workload: after drain: %w", err)
	}

	r.rep.Duration = time.Since(start)
	r.log.Debug("workload finished",
		"seed", cfg.Seed, "allocs", r.rep.Allocs, "frees", r.rep.Frees,
		"failed", r.rep.FailedAllocs, "peak_live", r.rep.PeakLive)
	return r.rep, nil
}

func (r *runner) allocNext(i int) bool {
	switch {
	case len(r.live) == 0:
		return true
	case r.cfg.MaxLive > 0 && len(r.live) >= r.cfg.MaxLive:
		return false
	case r.cfg.Burst > 0:
		return (i/r.cfg.Burst)%2 == 0
	default:
		return r.rng.Float64() < r.bias
	}
}

func (r *runner) alloc() error {
	size := r.cfg.MinSize + r.rng.Intn(r.cfg.MaxSize-r.cfg.MinSize+1)
	pattern := byte(r.rng.Intn(256))
	name := "b" + strconv.Itoa(r.seq)
	r.seq++
	if r.cfg.Trace != nil {
		r.cfg.Trace.Alloc(name, size)
	}

	ref, p, err := r.a.Alloc(size)
	if errors.Is(err, alloc.ErrNoSpace) || errors.Is(err, alloc.ErrTooLarge) {
		r.rep.FailedAllocs++
		return nil
	}
	if err != nil {
		return err
	}

	for j := range p {
		p[j] = pattern ^ byte(j)
	}
	sum := xxh3.Hash(p)
	r.live = append(r.live, liveBlock{name: name, ref: ref, p: p, sum: sum})
	r.bytes += size
	r.rep.Allocs++
	r.rep.Digest = (r.rep.Digest ^ (uint64(ref)<<32 | uint64(size))) * 0x100000001b3
	return nil
}

func (r *runner) free(j int) error {
	b := r.live[j]
	if got := xxh3.Hash(b.p); got != b.sum {
		return fmt.Errorf("%w: %s at 0x%X (%d bytes)", ErrContentMismatch, b.name, b.ref, len(b.p))
	}
	if r.cfg.Trace != nil {
		r.cfg.Trace.Free(b.name)
	}
	if err := r.a.Free(b.ref); err != nil {
		return fmt.Errorf("free %s at 0x%X: %w", b.name, b.ref, err)
	}

	last := len(r.live) - 1
	r.live[j] = r.live[last]
	r.live = r.live[:last]
	r.bytes -= len(b.p)
	r.rep.Frees++
	return nil
}

func (r *runner) verify() error {
	if r.cfg.Verify == nil {
		return nil
	}
	return r.cfg.Verify(r.refs())
}

func (r *runner) sample() {
	r.rep.PeakLive = max(r.rep.PeakLive, len(r.live))
	r.rep.PeakBytes = max(r.rep.PeakBytes, r.bytes)
	if r.frag != nil {
		r.rep.PeakFragmentation = max(r.rep.PeakFragmentation, r.frag.Fragmentation())
	}
}

func (r *runner) refs() []alloc.Ref {
	out := make([]alloc.Ref, len(r.live))
	for i, b := range r.live {
		out[i] = b.ref
	}
	return out
}
