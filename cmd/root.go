package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "engagement",
	Short: "Engagement service",
	Long:  `Engagement service: reactions, subscriptions, watch history and the realtime notification gateway`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
