package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "restwire",
	Short: "Send HTTP requests from plain text files.",
	Long: `restwire dispatches HTTP requests written as plain text. Describe a
request in a .http file the way it goes on the wire, or pass a URL
directly, and restwire handles auth, cookies, proxies, certificates
and response decoding.`,
	SilenceUsage: true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cookiesCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(echoCmd)
	rootCmd.AddCommand(llmsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}
