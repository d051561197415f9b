// Command framecoder captures raw frames and encodes them through one of
// the built-in codec backends.
package main

import (
	"os"

	"github.com/mikeyg42/framecoder/cmd/framecoder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
