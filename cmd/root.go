// cmd/root.go
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "tripnaraht",
	Short: "Day-trip itinerary planning core (VRPTW solver, direction selection, POI pooling)",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the root command; this is the only symbol main.go calls.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(planCmd)
}
