//go:build !(rp2040 || rp2350)

package main

// The node firmware only targets the rp2 family. On a host, run
// cmd/nodesim instead; it drives the same services over a simulated
// board.
func main() {
	println("node: rp2-only firmware entry, use cmd/nodesim on a host")
}
