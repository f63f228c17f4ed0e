// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// ExitUsage is the exit status for bad command-line arguments.
const ExitUsage = 2

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// UsageError writes "error: err", then usage, to stderr and exits with
// ExitUsage.
func UsageError(err error, usage string) {
	fmt.Fprintf(os.Stderr, "error: %v\n%s", err, usage)
	os.Exit(ExitUsage)
}
