package main

import (
	"time"

	"swarmnode-go/device"
)

// Smoke entry for bring-up on a bare board. The real firmware lives in
// cmd/node; this just proves the toolchain and the console.
func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("swarmnode smoke:", device.Selected.Node)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	count := 0
	for range tick.C {
		count++
		println("alive", count)
	}
}
