// Command scduck syncs dated tabular snapshots into bitemporal,
// SCD-Type-2 versioned tables stored in a local SQLite file.
package main

import (
	"fmt"
	"os"

	"github.com/scduck/scduck/internal/config"
)

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "scduck: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
