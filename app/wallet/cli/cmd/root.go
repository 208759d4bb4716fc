// Package cmd contains the wallet app commands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	nodeURL string
	keyPath string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&nodeURL, "url", "u", "http://localhost:8080", "Url of the node.")
	rootCmd.PersistentFlags().StringVarP(&keyPath, "key-path", "k", "zblock/node.ecdsa", "Path to the private key.")
}

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Your simple wallet",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
