// Command polish rewrites a saved compose-window draft through the gate and
// prints the result.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
