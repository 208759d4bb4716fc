package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/wallet"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	w, err := wallet.New()
	if err != nil {
		log.Fatal(err)
	}

	if err := w.Save(keyPath); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Account:", w.AccountID())
}
