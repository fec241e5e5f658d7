package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/deadpool/alloc"
	"github.com/joshuapare/deadpool/internal/logger"
	"github.com/joshuapare/deadpool/verify"
	"github.com/joshuapare/deadpool/workload"
)

var (
	simArena    arenaFlags
	simPreset   string
	simOps      int
	simSeed     int64
	simMin      int
	simMax      int
	simMaxLive  int
	simBias     float64
	simBurst    int
	simParallel int
	simShared   bool
	simVerify   bool
	simTrace    string
)

func init() {
	cmd := newSimulateCmd()
	simArena.register(cmd)
	cmd.Flags().StringVar(&simPreset, "preset", "uniform", "Workload preset: "+strings.Join(presetNames(), ", "))
	cmd.Flags().IntVar(&simOps, "ops", 10000, "Operations per worker before the final drain")
	cmd.Flags().Int64Var(&simSeed, "seed", 1, "Random seed (worker i uses seed+i)")
	cmd.Flags().IntVar(&simMin, "min", 0, "Minimum request size (0 = preset default)")
	cmd.Flags().IntVar(&simMax, "max", 0, "Maximum request size (0 = preset default)")
	cmd.Flags().IntVar(&simMaxLive, "max-live", 0, "Cap on outstanding blocks per worker (0 = preset default)")
	cmd.Flags().Float64Var(&simBias, "bias", 0, "Probability an op allocates (0 = preset default)")
	cmd.Flags().IntVar(&simBurst, "burst", 0, "Alternate runs of N allocs and N frees (0 = preset default)")
	cmd.Flags().IntVar(&simParallel, "parallel", 1, "Number of concurrent workers")
	cmd.Flags().BoolVar(&simShared, "shared", false, "Share one locked arena between all workers")
	cmd.Flags().BoolVar(&simVerify, "verify", false, "Validate the whole arena after every op (single worker) or at the end")
	cmd.Flags().StringVar(&simTrace, "trace", "", "Record the operation trace to this file (single worker)")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a randomized allocation workload",
		Long: `The simulate command drives one or more arenas with a reproducible random
mix of allocations and frees. Every payload is filled and fingerprinted, and the
fingerprint is re-checked before the block is freed. All blocks are freed at
the end, so a healthy arena always finishes as one free block.

Example:
  dpctl simulate --arena 1MiB --ops 100000 --seed 7
  dpctl simulate --preset small --parallel 8 --shared --mmap
  dpctl simulate --preset burst --verify --trace run.trace --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context())
		},
	}
	return cmd
}

// SimulationResult is the JSON shape of a simulate run.
type SimulationResult struct {
	Preset   string            `json:"preset"`
	Seed     int64             `json:"seed"`
	Ops      int               `json:"ops"`
	Workers  int               `json:"workers"`
	Shared   bool              `json:"shared"`
	Source   string            `json:"source"`
	Capacity int               `json:"capacity"`
	Total    workload.Report   `json:"total"`
	Reports  []workload.Report `json:"reports,omitempty"`
	Arenas   []verify.Summary  `json:"arenas"`
	Stats    []alloc.Stats     `json:"stats"`
}

func presetNames() []string {
	names := make([]string, 0, len(workload.Presets))
	for name := range workload.Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func simulationConfig() (workload.Config, error) {
	preset, ok := workload.Presets[simPreset]
	if !ok {
		return workload.Config{}, fmt.Errorf("unknown preset %q (want %s)", simPreset, strings.Join(presetNames(), ", "))
	}
	cfg := preset(simSeed, simOps)
	if simMin > 0 {
		cfg.MinSize = simMin
	}
	if simMax > 0 {
		cfg.MaxSize = simMax
	}
	if simMaxLive > 0 {
		cfg.MaxLive = simMaxLive
	}
	if simBias > 0 {
		cfg.AllocBias = simBias
	}
	if simBurst > 0 {
		cfg.Burst = simBurst
	}
	cfg.Logger = logger.L
	return cfg, cfg.Validate()
}

func runSimulate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := simulationConfig()
	if err != nil {
		return err
	}
	if simParallel < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}
	if simParallel > 1 && simTrace != "" {
		return fmt.Errorf("--trace requires a single worker")
	}
	if simParallel > 1 && !simShared && simArena.backing != "" {
		return fmt.Errorf("--backing with several workers requires --shared")
	}

	arenas := make([]*arena, 0, simParallel)
	defer func() {
		for _, a := range arenas {
			if err := a.close(); err != nil {
				printError("closing arena: %v\n", err)
			}
		}
	}()
	openArena := func() (*arena, error) {
		a, err := simArena.open()
		if err != nil {
			return nil, err
		}
		arenas = append(arenas, a)
		return a, nil
	}

	res := SimulationResult{
		Preset:  simPreset,
		Seed:    simSeed,
		Ops:     simOps,
		Workers: simParallel,
		Shared:  simShared,
	}

	printVerbose("Config: sizes %d-%d, max live %d, bias %.2f, burst %d\n",
		cfg.MinSize, cfg.MaxSize, cfg.MaxLive, cfg.AllocBias, cfg.Burst)

	if simParallel == 1 {
		a, err := openArena()
		if err != nil {
			return err
		}
		if simVerify {
			cfg.Verify = func(live []alloc.Ref) error {
				if err := verify.AllInvariants(a.ArenaAllocator); err != nil {
					return err
				}
				return verify.Live(a.ArenaAllocator, live)
			}
		}
		var traceFile *os.File
		if simTrace != "" {
			traceFile, err = os.Create(simTrace)
			if err != nil {
				return err
			}
			defer traceFile.Close()
			cfg.Trace = workload.NewTraceWriter(traceFile)
		}

		rep, err := workload.Run(ctx, a, cfg)
		if cfg.Trace != nil {
			if ferr := cfg.Trace.Flush(); ferr != nil && err == nil {
				err = ferr
			}
		}
		if err != nil {
			return err
		}
		res.Total = rep
	} else {
		var shared *alloc.LockedAllocator
		if simShared {
			a, err := openArena()
			if err != nil {
				return err
			}
			shared = alloc.NewLocked(a.ArenaAllocator)
		} else {
			for range simParallel {
				if _, err := openArena(); err != nil {
					return err
				}
			}
		}

		reports, err := workload.RunParallel(ctx, simParallel, func(w int) (alloc.Allocator, error) {
			if shared != nil {
				return shared, nil
			}
			return arenas[w], nil
		}, cfg)
		if err != nil {
			return err
		}
		res.Reports = reports
		for _, rep := range reports {
			res.Total.Add(rep)
		}
	}

	for _, a := range arenas {
		if simVerify {
			if err := verify.AllInvariants(a.ArenaAllocator); err != nil {
				return err
			}
		}
		s, err := verify.Summarize(a.ArenaAllocator)
		if err != nil {
			return err
		}
		res.Arenas = append(res.Arenas, s)
		res.Stats = append(res.Stats, a.Stats())
	}
	res.Source = arenas[0].source
	res.Capacity = arenas[0].Capacity()

	if jsonOut {
		return printJSON(res)
	}
	printSimulation(res)
	return nil
}

func printSimulation(res SimulationResult) {
	t := res.Total
	printInfo("Simulation: preset %s, seed %d, %s ops, %d worker(s)", res.Preset, res.Seed, count(res.Ops), res.Workers)
	if res.Shared {
		printInfo(", shared arena")
	}
	printInfo("\n")
	printInfo("  Arena:           %s bytes (%s)\n", count(res.Capacity), res.Source)
	printInfo("  Allocs:          %s\n", count(t.Allocs))
	printInfo("  Frees:           %s\n", count(t.Frees))
	printInfo("  Failed allocs:   %s\n", count(t.FailedAllocs))
	printInfo("  Peak live:       %s blocks, %s bytes\n", count(t.PeakLive), count(t.PeakBytes))
	printInfo("  Fragmentation:   %.4f peak, %.4f before drain\n", t.PeakFragmentation, t.Fragmentation)
	printInfo("  Digest:          %016x\n", t.Digest)
	printInfo("  Duration:        %s\n", t.Duration)

	for i, s := range res.Arenas {
		st := res.Stats[i]
		label := "Arena after drain"
		if len(res.Arenas) > 1 {
			label = fmt.Sprintf("Arena %d after drain", i)
		}
		printInfo("%s:\n", label)
		printInfo("  Blocks:          %d (%d free), largest free %s bytes\n", s.Blocks, s.FreeBlocks, count(s.LargestFree))
		if st.Allocs > 0 {
			printInfo("  Search steps:    %.2f per alloc\n", float64(st.SearchSteps)/float64(st.Allocs+st.FailedAllocs))
		}
		printVerbose("  Splits:          %s, whole blocks %s\n", count(int(st.Splits)), count(int(st.WholeBlocks)))
		printVerbose("  Coalesces:       %s left, %s right\n", count(int(st.CoalesceLeft)), count(int(st.CoalesceRight)))
		if st.SelfCheckFailures > 0 || st.InvalidFrees > 0 {
			printInfo("  Self-check failures: %d, invalid frees: %d\n", st.SelfCheckFailures, st.InvalidFrees)
		}
	}
}
