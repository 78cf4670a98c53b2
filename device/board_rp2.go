//go:build rp2040 || rp2350

package device

import (
	"context"
	"machine"
	"runtime/volatile"
	"sync"
	"time"
	"unsafe"

	"device/arm"
	"device/rp"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers"

	"swarmnode-go/backup"
	"swarmnode-go/errcode"
)

var _ Board = (*rp2Board)(nil)

// Core-local control registers. These sit in the Cortex-M private
// peripheral space, outside the SVD-generated blocks.
var (
	sysTickCtrl = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000E010)))
	nvicICPR    = (*[2]volatile.Register32)(unsafe.Pointer(uintptr(0xE000E280)))
)

type rp2Board struct {
	prof Profile
	led  *pinIndicator
	bank *scratchBank

	i2cOnce sync.Once
	i2cBus  drivers.I2C
	i2cErr  error

	// Stack pointer staged for the bootloader handoff. The branch
	// installs it together with the jump, a split write would pull the
	// frame out from under the running code.
	handoffSP uint32
}

// NewBoard wires up the compiled-in profile. The LED starts low.
func NewBoard() Board {
	led := machine.Pin(Selected.LEDPin)
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.Low()
	return &rp2Board{prof: Selected, led: &pinIndicator{p: led}, bank: &scratchBank{}}
}

func (b *rp2Board) Name() string { return b.prof.Node }

func (b *rp2Board) Indicator() Indicator { return b.led }

func (b *rp2Board) RetentionRegisters() backup.Registers { return b.bank }

// -----------------------------------------------------------------------------
// Status LED
// -----------------------------------------------------------------------------

type pinIndicator struct{ p machine.Pin }

func (l *pinIndicator) On()  { l.p.High() }
func (l *pinIndicator) Off() { l.p.Low() }
func (l *pinIndicator) Toggle() {
	if l.p.Get() {
		l.p.Low()
	} else {
		l.p.High()
	}
}

// -----------------------------------------------------------------------------
// Retention bank (watchdog scratch)
// -----------------------------------------------------------------------------

// scratchBank maps the retention contract onto the watchdog SCRATCH
// registers, which warm resets leave alone. Only a power cycle or
// brownout clears them.
type scratchBank struct{}

func scratchReg(index int) *volatile.Register32 {
	switch index {
	case 0:
		return &rp.WATCHDOG.SCRATCH0
	case 1:
		return &rp.WATCHDOG.SCRATCH1
	case 2:
		return &rp.WATCHDOG.SCRATCH2
	case 3:
		return &rp.WATCHDOG.SCRATCH3
	case 4:
		return &rp.WATCHDOG.SCRATCH4
	case 5:
		return &rp.WATCHDOG.SCRATCH5
	case 6:
		return &rp.WATCHDOG.SCRATCH6
	case 7:
		return &rp.WATCHDOG.SCRATCH7
	default:
		panic("backup: register index out of range")
	}
}

func (s *scratchBank) ReadRegister(index int) uint32 { return scratchReg(index).Get() }
func (s *scratchBank) WriteRegister(index int, value uint32) {
	scratchReg(index).Set(value)
}
func (s *scratchBank) RegisterCount() int { return 8 }

// -----------------------------------------------------------------------------
// I2C owner (one worker per bus)
// -----------------------------------------------------------------------------

// request posted to the bus worker
type i2cReq struct {
	addr uint16
	w, r []byte
	done chan error // buffered(1); worker replies best-effort
}

// i2cOwner hosts the single goroutine that touches the controller.
type i2cOwner struct {
	hw   *machine.I2C
	reqs chan i2cReq
}

func newI2COwner(hw *machine.I2C) *i2cOwner {
	o := &i2cOwner{hw: hw, reqs: make(chan i2cReq, 8)}
	go o.loop()
	return o
}

func (o *i2cOwner) loop() {
	for req := range o.reqs {
		err := o.hw.Tx(req.addr, req.w, req.r)
		// best-effort reply; do not block the worker
		select {
		case req.done <- err:
		default:
		}
	}
}

// driversI2C adapts the owner to tinygo.org/x/drivers.I2C and bounds
// each call so a wedged bus cannot stall the caller.
type driversI2C struct {
	o       *i2cOwner
	timeout time.Duration
}

var _ drivers.I2C = (*driversI2C)(nil)

func (d *driversI2C) Tx(addr uint16, w, r []byte) error {
	req := i2cReq{addr: addr, w: w, r: r, done: make(chan error, 1)}

	t := time.NewTimer(d.timeout)
	select {
	case d.o.reqs <- req:
		if !t.Stop() {
			<-t.C
		}
	case <-t.C:
		return errcode.Busy
	}

	t = time.NewTimer(d.timeout)
	defer t.Stop()
	select {
	case err := <-req.done:
		return err
	case <-t.C:
		return errcode.Timeout
	}
}

func (b *rp2Board) SensorBus() (drivers.I2C, error) {
	b.i2cOnce.Do(func() {
		var hw *machine.I2C
		switch b.prof.I2CBus {
		case "i2c0":
			hw = machine.I2C0
		case "i2c1":
			hw = machine.I2C1
		default:
			b.i2cErr = &errcode.E{C: errcode.Unavailable, Op: "sensor bus", Msg: b.prof.I2CBus}
			return
		}
		sda := machine.Pin(b.prof.I2CSDA)
		scl := machine.Pin(b.prof.I2CSCL)
		sda.Configure(machine.PinConfig{Mode: machine.PinI2C})
		scl.Configure(machine.PinConfig{Mode: machine.PinI2C})
		if err := hw.Configure(machine.I2CConfig{
			SCL:       scl,
			SDA:       sda,
			Frequency: b.prof.I2CHz,
		}); err != nil {
			b.i2cErr = err
			return
		}
		b.i2cBus = &driversI2C{o: newI2COwner(hw), timeout: 250 * time.Millisecond}
	})
	return b.i2cBus, b.i2cErr
}

// -----------------------------------------------------------------------------
// Console transport
// -----------------------------------------------------------------------------

func (b *rp2Board) SerialTransport(ctx context.Context) (Transport, error) {
	switch b.prof.Serial {
	case SerialUART0, SerialUART1:
		hw := uartx.UART0
		if b.prof.Serial == SerialUART1 {
			hw = uartx.UART1
		}
		if err := hw.Configure(uartx.UARTConfig{
			BaudRate: b.prof.UARTBaud,
			TX:       machine.Pin(b.prof.UARTTX),
			RX:       machine.Pin(b.prof.UARTRX),
		}); err != nil {
			return nil, err
		}
		return &uartTransport{u: hw}, nil
	default:
		tr := &usbTransport{s: machine.Serial}
		if err := tr.awaitHost(ctx); err != nil {
			return nil, err
		}
		return tr, nil
	}
}

// uartTransport adapts uartx, which already blocks the goroutine
// instead of spinning.
type uartTransport struct{ u *uartx.UART }

func (t *uartTransport) Write(p []byte) (int, error) { return t.u.Write(p) }
func (t *uartTransport) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	return t.u.RecvSomeContext(ctx, p)
}
func (t *uartTransport) Connected() bool { return true }

// usbTransport wraps the native USB CDC console.
type usbTransport struct{ s machine.Serialer }

// awaitHost parks until a terminal raises DTR, then lets the host's
// own console settle before the banner goes out.
func (t *usbTransport) awaitHost(ctx context.Context) error {
	for !t.s.DTR() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	time.Sleep(200 * time.Millisecond)
	return nil
}

func (t *usbTransport) Write(p []byte) (int, error) { return t.s.Write(p) }

func (t *usbTransport) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if t.s.Buffered() > 0 {
			n := 0
			for n < len(p) && t.s.Buffered() > 0 {
				c, err := t.s.ReadByte()
				if err != nil {
					break
				}
				p[n] = c
				n++
			}
			if n > 0 {
				return n, nil
			}
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (t *usbTransport) Connected() bool { return t.s.DTR() }

// -----------------------------------------------------------------------------
// Reset and handoff plumbing shared by both chips
// -----------------------------------------------------------------------------

func (b *rp2Board) SoftReset() {
	arm.SystemReset()
}

// DisableInterrupts masks all interrupt sources, including SysTick so
// no tick fires once the runtime is out of the picture.
func (b *rp2Board) DisableInterrupts() {
	arm.DisableInterrupts()
	sysTickCtrl.Set(0)
}

// ClearPending wipes pended external interrupts so nothing replays
// after the bootloader unmasks.
func (b *rp2Board) ClearPending() {
	nvicICPR[0].Set(0xFFFFFFFF)
	nvicICPR[1].Set(0xFFFFFFFF)
}

// VectorBase is where the ROM keeps its vector table.
func (b *rp2Board) VectorBase() uintptr { return 0x00000000 }

// ReadVector pulls the bootloader's initial stack pointer and reset
// entry out of the ROM table.
func (b *rp2Board) ReadVector(base uintptr) (sp, entry uint32) {
	sp = (*volatile.Register32)(unsafe.Pointer(base)).Get()
	entry = (*volatile.Register32)(unsafe.Pointer(base + 4)).Get()
	return sp, entry
}

// SetStack stages the bootloader's stack pointer. Jump installs it.
func (b *rp2Board) SetStack(sp uint32) { b.handoffSP = sp }

// Jump enters the ROM's USB bootloader. The ROM call re-arms stack and
// vector table from its own header, so the staged values only describe
// what it will load. Never returns.
func (b *rp2Board) Jump(entry uint32) {
	romResetUSBBoot()
	for {
		arm.Asm("wfi")
	}
}
