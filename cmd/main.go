package main

import (
	"fmt"
	"os"
)

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode is 0 on success and 1 for any failure: empty enumeration, a
// compute API error, a build failure or a result mismatch.
func exitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}
