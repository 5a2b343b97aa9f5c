// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. This is
// the standard labgate binary entrypoint error handler. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
//
// If err carries an ExitCode() int method (such as cli.ExitError), the
// process exits with that code and prints nothing: the command already
// produced its own output.
func Fatal(err error) {
	if coder, ok := err.(interface{ ExitCode() int }); ok {
		os.Exit(coder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
