package main

import (
	"github.com/spf13/cobra"
	"github.com/thraizz/yomi-server-go/internal/sim"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Run a scripted duel",
		Long: `Run a YAML duel script on a manual clock and print the event trace
followed by every fighter's final health.

Example:
  yomisim run scripts/duels/blocked.yaml
  yomisim run --format json --config config/config.yaml scripts/duels/stun.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, opts, args[0])
		},
	}
}

func runScript(cmd *cobra.Command, opts *rootOptions, path string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger, err := opts.logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	script, err := sim.LoadScript(path)
	if err != nil {
		return err
	}
	result, err := sim.Run(script, sim.Options{Combat: cfg.Combat, Logger: logger})
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return sim.WriteJSON(cmd.OutOrStdout(), result)
	}
	return sim.WriteText(cmd.OutOrStdout(), result)
}
