package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "esewactl",
		Short:         "Sign, initiate and verify eSewa payments from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", os.Getenv("ESEWA_CONFIG_FILE"), "YAML config file (environment variables override it)")

	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(initiateCmd())
	rootCmd.AddCommand(verifyCmd())

	return rootCmd
}
