package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/deadpool/alloc"
	"github.com/joshuapare/deadpool/verify"
	"github.com/joshuapare/deadpool/workload"
)

var (
	replayArena  arenaFlags
	replayLayout bool
)

func init() {
	cmd := newReplayCmd()
	replayArena.register(cmd)
	cmd.Flags().BoolVar(&replayLayout, "layout", true, "Print the final block layout")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <trace>",
		Short: "Replay an allocation trace against a fresh arena",
		Long: `The replay command applies a text trace to a fresh arena and reports the
outcome of every operation followed by the final block layout. Trace lines are

  alloc <name> <size>
  free <name>

Blank lines and lines starting with '#' are ignored. Traces recorded with
"dpctl simulate --trace" replay identically on an arena of the same size and
alignment.

Example:
  dpctl replay run.trace --arena 64KiB
  dpctl replay run.trace --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args)
		},
	}
	return cmd
}

// ReplayStep is the JSON shape of one replayed op.
type ReplayStep struct {
	Line  int    `json:"line"`
	Op    string `json:"op"`
	Ref   uint32 `json:"ref,omitempty"`
	Error string `json:"error,omitempty"`
}

// ReplayResult is the JSON shape of a replay.
type ReplayResult struct {
	Trace   string         `json:"trace"`
	Ops     int            `json:"ops"`
	Failed  int            `json:"failed"`
	Steps   []ReplayStep   `json:"steps"`
	Blocks  []alloc.Block  `json:"blocks"`
	Summary verify.Summary `json:"summary"`
}

func runReplay(args []string) error {
	path := args[0]
	printVerbose("Reading trace: %s\n", path)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	ops, err := workload.ParseTrace(f)
	f.Close()
	if err != nil {
		return err
	}

	a, err := replayArena.open()
	if err != nil {
		return err
	}
	defer a.close()

	res := ReplayResult{Trace: path, Ops: len(ops)}
	res.Failed = workload.Replay(a, ops, func(r workload.Result) {
		step := ReplayStep{Line: r.Op.Line, Op: r.Op.String(), Ref: uint32(r.Ref)}
		if r.Err != nil {
			step.Error = r.Err.Error()
		}
		res.Steps = append(res.Steps, step)
		if jsonOut {
			return
		}
		switch {
		case r.Err != nil:
			printInfo("line %d: %s: %v\n", r.Op.Line, r.Op, r.Err)
		case r.Op.Kind == workload.OpAlloc:
			printVerbose("line %d: %s -> 0x%X\n", r.Op.Line, r.Op, r.Ref)
		default:
			printVerbose("line %d: %s (0x%X)\n", r.Op.Line, r.Op, r.Ref)
		}
	})

	if err := a.Blocks(func(b alloc.Block) bool {
		res.Blocks = append(res.Blocks, b)
		return true
	}); err != nil {
		return err
	}
	if err := verify.AllInvariants(a.ArenaAllocator); err != nil {
		return err
	}
	res.Summary, err = verify.Summarize(a.ArenaAllocator)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}

	printInfo("Replayed %s ops from %s, %s failed\n", count(res.Ops), path, count(res.Failed))
	if replayLayout {
		printInfo("\n%-10s  %-10s  %-9s  %s\n", "OFFSET", "SIZE", "STATE", "NEXT")
		for _, b := range res.Blocks {
			state, next := "allocated", "-"
			if b.Free {
				state = "free"
				if b.Next >= 0 {
					next = fmt.Sprintf("0x%X", b.Next)
				} else {
					next = "end"
				}
			}
			printInfo("0x%-8X  %-10s  %-9s  %s\n", b.Offset, count(b.Size), state, next)
		}
		printInfo("\n")
	}
	s := res.Summary
	printInfo("Blocks: %d (%d free, %d allocated)\n", s.Blocks, s.FreeBlocks, s.AllocatedBlocks)
	printInfo("Free: %s bytes, largest %s, fragmentation %.4f\n", count(s.FreeBytes), count(s.LargestFree), s.Fragmentation)
	return nil
}
