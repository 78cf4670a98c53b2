//go:build (rp2040 || rp2350) && console_uart0

package device

// Overlay for boards with no usable USB port: route the console to
// UART0 on GP0/GP1. Runs after the base profile init in this package.
func init() {
	Selected.Serial = SerialUART0
}
