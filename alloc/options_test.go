package alloc

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/deadpool/internal/format"
)

// recorder captures log calls per level.
type recorder struct {
	lines map[string][]string
}

func newRecorder() *recorder {
	return &recorder{lines: make(map[string][]string)}
}

func (r *recorder) slot(level string) func(string, ...any) {
	return func(msg string, args ...any) {
		r.lines[level] = append(r.lines[level], fmt.Sprint(append([]any{msg}, args...)...))
	}
}

func (r *recorder) logger() Logger {
	return Logger{
		Debug:   r.slot("debug"),
		Info:    r.slot("info"),
		Warning: r.slot("warning"),
		Error:   r.slot("error"),
	}
}

func TestLogger_Levels(t *testing.T) {
	rec := newRecorder()
	a, _ := newTestArena(t, 256, &Options{Logger: rec.logger()})
	require.Len(t, rec.lines["info"], 1)

	ref, _, err := a.Alloc(64)
	require.NoError(t, err)
	require.Len(t, rec.lines["debug"], 1)

	_, _, err = a.Alloc(200)
	require.ErrorIs(t, err, ErrNoSpace)
	require.Len(t, rec.lines["warning"], 1)

	require.NoError(t, a.Free(ref))
	require.Len(t, rec.lines["debug"], 2)

	require.Error(t, a.Free(ref))
	require.Len(t, rec.lines["error"], 1)
	assert.Contains(t, rec.lines["error"][0], "double free")
}

func TestLogger_PartialSlots(t *testing.T) {
	var errs int
	a, _ := newTestArena(t, 256, &Options{Logger: Logger{
		Error: func(string, ...any) { errs++ },
	}})

	ref, _, err := a.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, a.Free(ref))
	require.ErrorIs(t, a.Free(ref), ErrDoubleFree)
	assert.Equal(t, 1, errs)
}

func TestSlogLogger(t *testing.T) {
	var out bytes.Buffer
	l := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a, _ := newTestArena(t, 256, &Options{Logger: SlogLogger(l)})
	_, _, err := a.Alloc(8)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "level=INFO msg=\"arena initialized\"")
	assert.Contains(t, out.String(), "level=DEBUG msg=\"allocated block\" size=8")

	assert.Equal(t, Logger{}, SlogLogger(nil))
}

func TestSelfCheck_ReportsWithoutFailingFree(t *testing.T) {
	rec := newRecorder()
	a, buf, refs := threeBlocks(t, &Options{SelfCheck: true, Stats: true, Logger: Logger{Error: rec.slot("error")}})

	require.NoError(t, a.Free(refs[0]))
	require.Zero(t, a.Stats().SelfCheckFailures)

	// Corrupt the listed block so the next walk fails
	format.SetState(buf, 0, format.StateAllocated)

	require.NoError(t, a.Free(refs[2]))
	assert.Equal(t, uint64(1), a.Stats().SelfCheckFailures)
	require.Len(t, rec.lines["error"], 1)
	assert.Contains(t, rec.lines["error"][0], "self-check failed")
}
