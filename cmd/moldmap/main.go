// Package main is the moldmap entry point: path planning plus mold
// controller communication over serial or an in-process simulator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"moldmap/internal/cli"
	"moldmap/internal/util"
)

func main() {
	util.SetupLogger()

	rootCmd := &cobra.Command{
		Use:   "moldmap",
		Short: "moldmap - adaptive mold surface mapping",
		Long: `moldmap sequences 3D geometry into a traversal path and drives the
mold controller through it over a line-oriented JSON protocol, with an
in-process simulator standing in when no hardware is attached.`,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.PlanCmd())
	rootCmd.AddCommand(cli.PortsCmd())
	rootCmd.AddCommand(cli.JobsCmd())
	rootCmd.AddCommand(cli.MockCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
