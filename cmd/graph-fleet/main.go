// Command graph-fleet runs a cloud agent session against the platform's
// credential store and the per-cloud tool servers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
