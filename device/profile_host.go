//go:build !tinygo

package device

// Host builds simulate the board, so the wiring is nominal.
func init() {
	Selected = Profile{
		Node:   "swarm-sim",
		NodeID: 2,
		LEDPin: 25,
		Serial: SerialUSB,
		I2CBus: "i2c0",
	}
}
