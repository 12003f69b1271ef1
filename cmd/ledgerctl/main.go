// cmd/ledgerctl/main.go
package main

import (
	"os"

	"github.com/your-org/inventory-ledger/internal/config"
)

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		os.Exit(1)
	}
}
