package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/viant/fsmflow"
)

var rootCmd = &cobra.Command{
	Use:   "fsmflow",
	Short: "fsmflow runs event-driven state machine flows",
	Long:  `fsmflow drives turnstile flows through the runtime and reports container statistics.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config URL (file://, mem:// or plain path)")
}

// loadConfig returns the config named by the --config flag or the defaults
func loadConfig(ctx context.Context, cmd *cobra.Command) (*fsmflow.Config, error) {
	URL, _ := cmd.Flags().GetString("config")
	if URL == "" {
		return fsmflow.DefaultConfig(), nil
	}
	return fsmflow.LoadConfig(ctx, URL)
}
