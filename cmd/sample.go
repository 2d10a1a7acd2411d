package cmd

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/encodeous/dvr/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

func sampleConfig() state.SimCfg {
	nodes := make([]state.NodeCfg, 0)
	for id := range 6 {
		nodes = append(nodes, state.NodeCfg{
			Id:        state.NodeId(id + 1),
			Addresses: []netip.Addr{netip.AddrFrom4([4]byte{10, 0, 0, byte(id + 1)})},
		})
	}
	nodes[5].Prefixes = []netip.Prefix{netip.MustParsePrefix("192.168.6.0/24")}
	return state.SimCfg{
		UpdateInterval: 1,
		PoisonReverse:  true,
		AllowExpire:    true,
		Nodes:          nodes,
		Graph: []string{
			"core = 1, 2, 3",
			"core, core",
			"4, 5",
		},
		Links: []state.LinkCfg{
			{A: 3, B: 4, Weight: 2},
			{A: 5, B: 6, Weight: 1},
			{A: 1, B: 6, Weight: 8},
		},
		Events: []state.EventCfg{
			{At: 40, A: 5, B: 6, Down: true},
			{At: 80, A: 5, B: 6, Up: true},
			{At: 90, A: 3, B: 4, Weight: 5},
		},
	}
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write a sample topology",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := sampleConfig()
		err := state.ConfigValidator(&cfg)
		if err != nil {
			panic(err)
		}
		out, err := yaml.Marshal(&cfg)
		if err != nil {
			panic(err)
		}
		outPath := cmd.Flag("output").Value.String()
		if outPath == "-" {
			fmt.Print(string(out))
			return
		}
		err = os.WriteFile(outPath, out, 0600)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Wrote sample topology to %s\n", outPath)
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(sampleCmd)
	sampleCmd.Flags().StringP("output", "o", "topology.yaml", "output path, - for stdout")
}
