package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // set via ldflags at build time

var rootCmd = &cobra.Command{
	Use:   "energygate",
	Short: "Wallet-authenticated websocket gateway with a daily energy quota",
	Long: `energygate accepts websocket clients, challenges them with a uuid,
verifies a personal-sign signature over wallet:uuid:nonce and replies
with the wallet's remaining energy for the day.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
