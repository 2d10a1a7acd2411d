package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath = "topology.yaml"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dvr",
	Short: "Distance-vector routing simulator",
	Long: `dvr simulates a network of routers running a RIP style distance-vector protocol.
Topologies, link failures and weight changes are described in a yaml file.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Create Topologies",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sim",
		Title: "Simulation Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "topology config")
}
