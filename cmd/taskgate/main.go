// Package main implements the taskgate command: a demo host that runs HTTP
// tasks through a lifecycle-aware task manager and a migration tool for the
// postgres snapshot backend.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
