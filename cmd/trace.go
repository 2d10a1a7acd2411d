package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strings"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Converge the topology, then follow the route between a node and an address",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := core.ReadConfig(configPath)
		if err != nil {
			panic(err)
		}
		from, _ := cmd.Flags().GetInt64("from")
		to, _ := cmd.Flags().GetString("to")
		ticks, _ := cmd.Flags().GetInt64("ticks")
		dst, err := netip.ParseAddr(to)
		if err != nil {
			fmt.Printf("Invalid address: %s\n", to)
			os.Exit(-1)
		}

		level := slog.LevelWarn
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		n, err := core.NewNetwork(*cfg, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		if err != nil {
			panic(err)
		}
		defer n.Close()

		if ticks > 0 {
			err = n.Run(state.Tick(ticks))
		} else {
			var stable bool
			_, stable, err = n.RunUntilStable(state.StableIntervals, 10_000)
			if err == nil && !stable {
				fmt.Println("Warning: the network did not converge")
			}
		}
		if err != nil {
			panic(err)
		}

		path, err := n.Trace(state.NodeId(from), dst)
		hops := make([]string, 0, len(path))
		for _, hop := range path {
			hops = append(hops, fmt.Sprint(hop))
		}
		fmt.Printf("tick %d: %s\n", n.Tick(), strings.Join(hops, " -> "))
		if err != nil {
			if errors.Is(err, core.ErrUnknownNode) || errors.Is(err, core.ErrUnknownAddr) {
				fmt.Println("Error:", err.Error())
				os.Exit(-1)
			}
			fmt.Println("Trace failed:", err.Error())
			os.Exit(1)
		}
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(traceCmd)

	traceCmd.Flags().Int64P("from", "f", 0, "Node to start the trace from")
	traceCmd.Flags().StringP("to", "d", "", "Destination address")
	traceCmd.Flags().Int64P("ticks", "t", 0, "Run exactly this many ticks instead of waiting for convergence")
	traceCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	_ = traceCmd.MarkFlagRequired("from")
	_ = traceCmd.MarkFlagRequired("to")
}
