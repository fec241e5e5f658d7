package alloc

import (
	"log/slog"
	"os"
)

// Runtime self-check toggle, controlled by the DEADPOOL_SELFCHECK env var.
var selfCheckEnv = os.Getenv("DEADPOOL_SELFCHECK") != ""

// Options configures an ArenaAllocator. The zero value is a valid
// configuration; pass nil to NewArena for defaults.
type Options struct {
	// Alignment of every payload. Zero means MaxAlign. Must be a power of two
	// between 8 and 4096.
	Alignment int

	// Logger receives diagnostics. Unset slots are skipped.
	Logger Logger

	// SelfCheck walks the free list after every successful Free and reports
	// corruption through Logger.Error. It never changes a Free result.
	SelfCheck bool

	// Stats enables the counters returned by Stats.
	Stats bool
}

// Logger is a set of four optional callbacks. Logging never alters control
// flow; a nil slot is a no-op.
type Logger struct {
	Debug   func(msg string, args ...any)
	Info    func(msg string, args ...any)
	Warning func(msg string, args ...any)
	Error   func(msg string, args ...any)
}

// SlogLogger routes all four slots to l.
func SlogLogger(l *slog.Logger) Logger {
	if l == nil {
		return Logger{}
	}
	return Logger{
		Debug:   l.Debug,
		Info:    l.Info,
		Warning: l.Warn,
		Error:   l.Error,
	}
}
