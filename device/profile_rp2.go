//go:build rp2040 || rp2350

package device

// Pico-family wiring. LED on GP25, sensor bus on I2C0 (GP12/GP13),
// console over native USB unless an overlay moves it to a UART.
func init() {
	Selected = Profile{
		Node:     "swarm-pico",
		NodeID:   1,
		LEDPin:   25,
		Serial:   SerialUSB,
		UARTBaud: 115200,
		UARTTX:   0,
		UARTRX:   1,
		I2CBus:   "i2c0",
		I2CSDA:   12,
		I2CSCL:   13,
		I2CHz:    400_000,
	}
}
