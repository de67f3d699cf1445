// Command drawctl runs a draw directly over a local CSV file, without the
// database or the API.
//
// Usage:
//
//	drawctl run --file base.csv --numero 45668 --serie 47 --mode partitioned
//	drawctl inspect --file base.csv
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
