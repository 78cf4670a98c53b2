package commands

import (
	"context"
	"runtime"
	"time"

	"swarmnode-go/backup"
	"swarmnode-go/bus"
	"swarmnode-go/device"
	"swarmnode-go/errcode"
	"swarmnode-go/types"
	"swarmnode-go/x/conv"
	"swarmnode-go/x/fmtx"
	"swarmnode-go/x/timex"
)

// Version is the firmware version the version command reports.
const Version = "1.0.0"

const sensorReplyTimeout = 1 * time.Second

const helpText = `Available commands:
  help - Show this help message
  sensors - Read all sensor data
  temp - Read temperature
  humidity - Read humidity
  debug - Get debug info
  status - Show device status
  ping - Test connectivity
  version - Show firmware version
  reg <index> - Dump a retention register
  reboot - Reboot the device
  dfu - Reboot to DFU mode`

// System is the slice of the device manager the executor drives.
type System interface {
	OwnerOf(resource string) string
	RetentionRegisters() backup.Registers
	SoftReset()
}

// Link is the piece of the console transport status reporting needs.
type Link interface {
	Connected() bool
}

// Executor runs parsed commands and renders their responses. Sensor
// reads go out as bus requests; reboot and dfu act through the device
// manager and the boot-task slot.
type Executor struct {
	sys   System
	tasks *backup.TaskAccessor
	conn  *bus.Connection
	link  Link
	node  string

	bootMs     int64
	resetDelay time.Duration
}

func NewExecutor(sys System, tasks *backup.TaskAccessor, conn *bus.Connection, node string) *Executor {
	return &Executor{
		sys:        sys,
		tasks:      tasks,
		conn:       conn,
		node:       node,
		bootMs:     timex.NowMs(),
		resetDelay: 150 * time.Millisecond,
	}
}

// SetLink attaches the console transport for status reporting.
func (e *Executor) SetLink(l Link) { e.link = l }

// Execute runs cmd and returns the response text, "" for a blank line.
func (e *Executor) Execute(ctx context.Context, cmd Command) string {
	switch cmd.Kind {
	case KindNone:
		return ""
	case KindHelp:
		return helpText
	case KindPing:
		return "PONG - Terminal connection active"
	case KindStatus:
		return e.status()
	case KindVersion:
		return "Swarmnode Firmware v" + Version + "\nnode: " + e.node
	case KindSensors:
		return e.readSensor(ctx, "all")
	case KindSensor:
		return e.readSensor(ctx, cmd.Sensor)
	case KindDebug:
		return e.debug()
	case KindReg:
		return e.readRegister(cmd.Index)
	case KindReboot:
		e.scheduleReset()
		return "Rebooting device..."
	case KindDFU:
		e.tasks.Write(types.TaskDFUReboot)
		e.scheduleReset()
		return "Rebooting to DFU mode..."
	case KindUnknown:
		return "Error: Unknown command '" + cmd.Raw + "'. Type 'help' for available commands."
	}
	return "Error: unhandled command"
}

// scheduleReset resets after a short grace so the response text reaches
// the host before the link goes down.
func (e *Executor) scheduleReset() {
	delay := e.resetDelay
	go func() {
		time.Sleep(delay)
		e.sys.SoftReset()
	}()
}

func (e *Executor) status() string {
	link := "idle"
	if e.link != nil && e.link.Connected() {
		link = "connected"
	}
	s := fmtx.Sprintf("Device Status:\n  Node: %s\n  Link: %s", e.node, link)
	for _, res := range []string{device.ResRetention, device.ResIndicator, device.ResSerial, device.ResSensorBus} {
		owner := e.sys.OwnerOf(res)
		if owner == "" {
			owner = "free"
		}
		s += fmtx.Sprintf("\n  %s: %s", res, owner)
	}
	return s
}

func (e *Executor) debug() string {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return fmtx.Sprintf("Debug Information:\n  Uptime: %d ms\n  Heap Used: %d bytes\n  Heap Free: %d bytes",
		timex.NowMs()-e.bootMs, ms.HeapAlloc, ms.HeapIdle)
}

func (e *Executor) readRegister(index int) string {
	regs := e.sys.RetentionRegisters()
	if regs == nil {
		return "Error: no retention bank on this board"
	}
	if index < 0 || index >= regs.RegisterCount() {
		return fmtx.Sprintf("Error: register index out of range (0..%d)", regs.RegisterCount()-1)
	}
	v := regs.ReadRegister(index)
	// conv handles the zero padding; the mini formatter pads %s only.
	var hx [8]byte
	return fmtx.Sprintf("REG[%d] = 0x%s (%d)", index, conv.U32Hex(hx[:], v), v)
}

func (e *Executor) readSensor(ctx context.Context, kind string) string {
	rctx, cancel := context.WithTimeout(ctx, sensorReplyTimeout)
	defer cancel()

	req := e.conn.NewMessage(bus.T("sensor", "read", kind), nil, false)
	rep, err := e.conn.RequestWait(rctx, req)
	if err != nil {
		return "Error: sensor read timed out"
	}
	switch p := rep.Payload.(type) {
	case types.Reading:
		return formatReading(kind, p)
	case errcode.Code:
		return sensorFault(kind, p)
	}
	return "Error: unexpected sensor reply"
}

func formatReading(kind string, r types.Reading) string {
	var ct, rh [12]byte
	switch kind {
	case "temperature":
		return fmtx.Sprintf("Temperature: %s°C", conv.Deci(ct[:], int32(r.DeciC)))
	case "humidity":
		return fmtx.Sprintf("Humidity: %s%%", conv.Deci(rh[:], int32(r.DeciRH)))
	}
	return fmtx.Sprintf("Temperature: %s°C\nHumidity: %s%%",
		conv.Deci(ct[:], int32(r.DeciC)), conv.Deci(rh[:], int32(r.DeciRH)))
}

func sensorFault(kind string, c errcode.Code) string {
	switch c {
	case errcode.UnknownSensor:
		return "Error: unknown sensor '" + kind + "'"
	case errcode.Unavailable:
		return "Error: sensor unavailable"
	case errcode.NotReady:
		return "Error: sensor not ready, try again"
	case errcode.Timeout:
		return "Error: sensor read timed out"
	}
	return "Error: sensor read failed: " + string(c)
}
