package workload

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/deadpool/alloc"
)

// Config describes a randomized operation sequence.
type Config struct {
	// Seed for the operation sequence and payload contents.
	Seed int64

	// Ops is the number of alloc/free operations before the final drain.
	Ops int

	// MinSize and MaxSize bound allocation requests, inclusive.
	MinSize int
	MaxSize int

	// MaxLive caps outstanding allocations; at the cap the next op is a free.
	// Zero means no cap.
	MaxLive int

	// AllocBias is the probability that an op allocates when both are
	// possible. Zero means 0.5.
	AllocBias float64

	// Burst, when positive, replaces the coin flip with alternating runs of
	// Burst allocations and Burst frees.
	Burst int

	// Verify, when set, runs after every op and after the drain with the
	// references the run currently holds. A non-nil result aborts the run.
	Verify func(live []alloc.Ref) error

	// Trace, when set, receives every op in the text trace format.
	Trace *TraceWriter

	// Logger receives progress at debug level. Nil discards.
	Logger *slog.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Ops < 0:
		return fmt.Errorf("workload: negative op count %d", c.Ops)
	case c.MinSize <= 0:
		return fmt.Errorf("workload: min size %d must be positive", c.MinSize)
	case c.MaxSize < c.MinSize:
		return fmt.Errorf("workload: max size %d below min size %d", c.MaxSize, c.MinSize)
	case c.MaxLive < 0:
		return fmt.Errorf("workload: negative live cap %d", c.MaxLive)
	case c.AllocBias < 0 || c.AllocBias > 1:
		return fmt.Errorf("workload: alloc bias %.2f outside [0, 1]", c.AllocBias)
	case c.Burst < 0:
		return fmt.Errorf("workload: negative burst %d", c.Burst)
	}
	return nil
}

// Uniform is a general-purpose mix of sizes up to 1 KiB.
func Uniform(seed int64, ops int) Config {
	return Config{Seed: seed, Ops: ops, MinSize: 1, MaxSize: 1024, MaxLive: 256, AllocBias: 0.6}
}

// Small stresses splitting and coalescing with many tiny blocks.
func Small(seed int64, ops int) Config {
	return Config{Seed: seed, Ops: ops, MinSize: 1, MaxSize: 64, MaxLive: 1024, AllocBias: 0.55}
}

// Burst fills the arena in runs and then empties it in runs.
func Burst(seed int64, ops int) Config {
	return Config{Seed: seed, Ops: ops, MinSize: 16, MaxSize: 512, Burst: 64}
}

// Presets maps preset names to their constructors.
var Presets = map[string]func(seed int64, ops int) Config{
	"uniform": Uniform,
	"small":   Small,
	"burst":   Burst,
}
