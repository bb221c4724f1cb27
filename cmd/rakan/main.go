// Package main implements the rakan backend: a smart-home event pipeline
// that turns sensor events into device commands over a message broker,
// with durable state, an append-only processing log, an HTTP API and a
// simulated device fleet.
package main

import (
	"fmt"
	"os"
	"runtime"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	Execute()
}
