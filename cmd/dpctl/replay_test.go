package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTrace(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.trace")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sampleTrace = `# best fit prefers the exact hole
alloc a 200
alloc b 16
alloc c 100
alloc d 16
free c
free a
alloc e 100
free ghost
`

func TestReplayCommand(t *testing.T) {
	resetFlags()
	replayArena.size = "1024"
	path := writeTrace(t, sampleTrace)

	output, err := captureOutput(t, func() error {
		return runReplay([]string{path})
	})
	require.NoError(t, err)
	assertContains(t, output, []string{
		"line 9: free ghost: workload: unknown block name: ghost",
		"Replayed 8 ops from",
		"1 failed",
		"OFFSET",
		"0x0         208         free       0x1A0",
		"0x100       112         allocated  -",
		"0x1A0       592         free       end",
		"Blocks: 5 (2 free, 3 allocated)",
	})
}

func TestReplayCommand_Verbose(t *testing.T) {
	resetFlags()
	verbose = true
	replayLayout = false
	replayArena.size = "1024"
	path := writeTrace(t, sampleTrace)

	output, err := captureOutput(t, func() error {
		return runReplay([]string{path})
	})
	require.NoError(t, err)
	assertContains(t, output, []string{
		"line 2: alloc a 200 -> 0x10",
		"line 8: alloc e 100 -> 0x110",
		"line 6: free c (0x110)",
	})
	assert.NotContains(t, output, "OFFSET")
}

func TestReplayCommand_JSON(t *testing.T) {
	resetFlags()
	jsonOut = true
	replayArena.size = "1024"
	path := writeTrace(t, sampleTrace)

	output, err := captureOutput(t, func() error {
		return runReplay([]string{path})
	})
	require.NoError(t, err)

	var res ReplayResult
	assertJSON(t, output, &res)
	assert.Equal(t, 8, res.Ops)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Steps, 8)
	assert.Equal(t, uint32(0x110), res.Steps[6].Ref)
	assert.Equal(t, 2, res.Summary.FreeBlocks)
}

func TestReplayCommand_Errors(t *testing.T) {
	resetFlags()
	quiet = true

	_, err := captureOutput(t, func() error {
		return runReplay([]string{filepath.Join(t.TempDir(), "missing.trace")})
	})
	require.Error(t, err)

	path := writeTrace(t, "alloc a\n")
	_, err = captureOutput(t, func() error {
		return runReplay([]string{path})
	})
	require.Error(t, err)
}

func TestParseSize(t *testing.T) {
	for in, want := range map[string]int{
		"4096": 4096, "64k": 64 << 10, "64KiB": 64 << 10, "1MiB": 1 << 20,
		"2mb": 2 << 20, "1G": 1 << 30, " 512 B ": 512,
	} {
		got, err := parseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "0", "-1", "abc", "5GiB", "1.5MiB"} {
		_, err := parseSize(in)
		require.Error(t, err, in)
	}
}
