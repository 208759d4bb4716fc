package main

import (
	"github.com/robinjongeneel23/blockchain/app/wallet/cli/cmd"
)

func main() {
	cmd.Execute()
}
