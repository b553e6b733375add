// Command academy runs the Academy Hub API server, its background jobs and
// the operator tooling: learner progress inspection, migrations and the admin
// session client.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
