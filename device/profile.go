package device

// Serial console routing choices.
const (
	SerialUSB   = "usb"
	SerialUART0 = "uart0"
	SerialUART1 = "uart1"
)

// Profile describes the wiring of one board build: where the console
// goes, which pins carry the sensor bus, which pin drives the LED.
// Pin numbers use the platform's native numbering.
type Profile struct {
	Node     string
	NodeID   uint16
	LEDPin   int
	Serial   string
	UARTBaud uint32
	UARTTX   int
	UARTRX   int
	I2CBus   string
	I2CSDA   int
	I2CSCL   int
	I2CHz    uint32
}

// Selected is the profile compiled into this build. Chip and overlay
// files fill it in through build tags.
var Selected Profile
