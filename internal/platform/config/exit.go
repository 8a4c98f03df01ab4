package config

import (
	"fmt"
	"os"
)

// Exitf prints the formatted message to stderr and stops the process with
// exit code 1. The diplomacy daemon calls it for unrecoverable startup
// failures such as a bad config or an unopenable store.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
