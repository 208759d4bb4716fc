package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/wallet"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the account id for the key pair",
	Run:   accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) {
	w, err := wallet.Load(keyPath)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Account:", w.AccountID())
}
