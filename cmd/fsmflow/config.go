package main

import (
	"github.com/spf13/cobra"
	"github.com/viant/fsmflow"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		encoded, err := fsmflow.EncodeConfig(config)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(encoded)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
