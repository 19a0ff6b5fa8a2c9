package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatflow",
	Short: "Chatflow - guided support chat runtime",
	Long: `Chatflow runs guided support conversations defined as step graphs.

It serves the customer widget and the admin preview over HTTP, validates
flow files, and plays flows in the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(playCmd)
}
