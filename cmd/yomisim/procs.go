package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thraizz/yomi-server-go/internal/game/combat"
)

type procsOptions struct {
	PPM     float64
	Elapsed float64
	Trials  int
	Seed    uint64
}

// procsReport compares the closed-form chance with what the draws produced.
type procsReport struct {
	PPM            float64 `json:"ppm"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Trials         int     `json:"trials"`
	Seed           uint64  `json:"seed"`
	Procs          int     `json:"procs"`
	Expected       float64 `json:"expected"`
	Observed       float64 `json:"observed"`
	ObservedPPM    float64 `json:"observed_ppm"`
}

func newProcsCommand(root *rootOptions) *cobra.Command {
	opts := &procsOptions{}

	cmd := &cobra.Command{
		Use:   "procs",
		Short: "Measure the proc rate empirically",
		Long: `Draw --trials proc checks, each --elapsed seconds after the previous one,
and compare the observed frequency with 1 - exp(-(ppm/60) * elapsed).

Example:
  yomisim procs --ppm 10 --elapsed 0.5 --trials 200000 --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := measureProcs(*opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if root.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(out, "ppm=%.4f elapsed=%.3fs trials=%d seed=%d\n",
				report.PPM, report.ElapsedSeconds, report.Trials, report.Seed)
			fmt.Fprintf(out, "expected=%.6f observed=%.6f procs=%d observed_ppm=%.4f\n",
				report.Expected, report.Observed, report.Procs, report.ObservedPPM)
			return nil
		},
	}

	baseline := combat.DefaultConfig()
	cmd.Flags().Float64Var(&opts.PPM, "ppm", baseline.OffensiveProcPPM, "procs per minute")
	cmd.Flags().Float64Var(&opts.Elapsed, "elapsed", baseline.ProcInterval.Seconds(), "seconds between checks")
	cmd.Flags().IntVar(&opts.Trials, "trials", 100000, "number of checks")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "random seed")

	return cmd
}

func measureProcs(opts procsOptions) (procsReport, error) {
	if !(opts.PPM > 0) {
		return procsReport{}, errors.New("--ppm must be positive")
	}
	if !(opts.Elapsed > 0) {
		return procsReport{}, errors.New("--elapsed must be positive")
	}
	if opts.Trials <= 0 {
		return procsReport{}, errors.New("--trials must be positive")
	}

	rng := combat.NewRand(opts.Seed)
	procs := 0
	for i := 0; i < opts.Trials; i++ {
		if combat.ShouldProc(rng, opts.PPM, opts.Elapsed) {
			procs++
		}
	}

	observed := float64(procs) / float64(opts.Trials)
	return procsReport{
		PPM:            opts.PPM,
		ElapsedSeconds: opts.Elapsed,
		Trials:         opts.Trials,
		Seed:           opts.Seed,
		Procs:          procs,
		Expected:       combat.ProcChance(opts.PPM, opts.Elapsed),
		Observed:       observed,
		ObservedPPM:    observed / opts.Elapsed * 60,
	}, nil
}
