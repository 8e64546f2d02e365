package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "qrgate <command>",
	Short:        "QR token barrier controller",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level from the config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(platesCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultConfigPath() string {
	if s := os.Getenv("QRGATE_CONFIG"); s != "" {
		return s
	}
	return ""
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
