package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/fsmflow"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fsmflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fsmflow version %s\n", fsmflow.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
