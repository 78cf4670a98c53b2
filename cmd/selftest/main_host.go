//go:build !(rp2040 || rp2350)

package main

func main() {
	println("selftest: rp2-only check image, run go test ./... on a host")
}
