package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: `Runs the topology either for a fixed number of ticks as fast as possible, or in real time with --realtime.
The simulation stops when the tick budget is used up or on SIGINT.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := core.ReadConfig(configPath)
		if err != nil {
			panic(err)
		}

		opts := core.RunOptions{
			LogLevel: slog.LevelInfo,
		}
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			opts.LogLevel = slog.LevelDebug
		}
		ticks, _ := cmd.Flags().GetInt64("ticks")
		opts.Ticks = state.Tick(ticks)
		opts.TickDuration, _ = cmd.Flags().GetDuration("realtime")
		opts.LogPath, _ = cmd.Flags().GetString("log")
		opts.MetricsAddr, _ = cmd.Flags().GetString("metrics")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		if ok, _ := cmd.Flags().GetBool("show"); ok {
			opts.ShowRoutes = os.Stdout
		}
		if opts.Ticks == 0 && opts.TickDuration == 0 {
			opts.TickDuration = state.DefaultTickDuration
		}

		err = core.Start(*cfg, opts)
		if err != nil {
			panic(err)
		}
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output, includes every router event")
	runCmd.Flags().Int64P("ticks", "t", 0, "Stop after this many ticks, 0 runs until interrupted")
	runCmd.Flags().DurationP("realtime", "r", time.Duration(0), "Wall time between ticks, 0 runs as fast as possible")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
	runCmd.Flags().StringP("metrics", "m", "", "Export metrics over http on this address, e.g. 127.0.0.1:9090")
	runCmd.Flags().BoolP("watch", "w", false, "Log every routing table change")
	runCmd.Flags().BoolP("show", "s", false, "Print every route table when the simulation stops")
}
