//go:build !tinygo

package device

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"swarmnode-go/backup"
	"swarmnode-go/dfu"
	"swarmnode-go/drivers/aht20"
	"swarmnode-go/errcode"
	"swarmnode-go/x/shmring"
)

var _ Board = (*SimBoard)(nil)

// Simulator exit codes. The harness restarts the process on a soft
// reset, so reset-survivable state has to live in a file-backed bank.
const (
	ExitOK        = 0
	ExitSoftReset = 42
	ExitHandoff   = 43
)

// Nominal ROM shadow for the simulated handoff.
const (
	simVectorBase uintptr = 0x1FFF0000
	simROMStack   uint32  = 0x20041000
	simROMEntry   uint32  = 0x00000115
)

// SimBoard mimics the node board on a host build. The handoff sequence
// is journaled step by step, and Jump writes a record of what the
// bootloader would have received instead of leaving the process.
type SimBoard struct {
	name string
	led  *simIndicator
	bank backup.Registers
	tr   Transport
	aht  *simAHT20

	// HandoffPath, when set, receives the magic/stack/entry record on
	// Jump.
	HandoffPath string
	// ExitFunc replaces process exit. Nil means the control methods
	// return to the caller, which only happens under test.
	ExitFunc func(code int)
	// RetentionErr, when set, makes ShutdownRetention report it.
	RetentionErr error

	mu        sync.Mutex
	journal   []string
	romSP     uint32
	romEntry  uint32
	handoffSP uint32
}

// NewSimBoard builds a simulated board over the given retention bank.
// A nil bank gets an in-memory one.
func NewSimBoard(bank backup.Registers) *SimBoard {
	if bank == nil {
		bank = backup.NewMemBank(8)
	}
	return &SimBoard{
		name:     Selected.Node,
		led:      &simIndicator{},
		bank:     bank,
		aht:      newSimAHT20(224, 450),
		romSP:    simROMStack,
		romEntry: simROMEntry,
	}
}

func (b *SimBoard) Name() string                         { return b.name }
func (b *SimBoard) Indicator() Indicator                 { return b.led }
func (b *SimBoard) RetentionRegisters() backup.Registers { return b.bank }

// SetTransport attaches the console link before bring-up.
func (b *SimBoard) SetTransport(tr Transport) { b.tr = tr }

func (b *SimBoard) SerialTransport(ctx context.Context) (Transport, error) {
	if b.tr == nil {
		return nil, &errcode.E{C: errcode.Unavailable, Op: "serial", Msg: "no console transport attached"}
	}
	return b.tr, nil
}

func (b *SimBoard) SensorBus() (drivers.I2C, error) { return b.aht, nil }

// SetSensorValues adjusts what the simulated sensor measures.
func (b *SimBoard) SetSensorValues(deciC, deciRH int32) { b.aht.set(deciC, deciRH) }

// SetROM overrides the stack pointer and entry the fake ROM reports.
func (b *SimBoard) SetROM(sp, entry uint32) {
	b.mu.Lock()
	b.romSP, b.romEntry = sp, entry
	b.mu.Unlock()
}

// LoadROM points the fake ROM at path, an 8-byte little-endian record
// of initial stack pointer and reset entry. A missing file is seeded
// with the stock values, so the record persists across re-execution
// the way the real ROM persists across resets.
func (b *SimBoard) LoadROM(path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		var rec [8]byte
		binary.LittleEndian.PutUint32(rec[0:4], simROMStack)
		binary.LittleEndian.PutUint32(rec[4:8], simROMEntry)
		return os.WriteFile(path, rec[:], 0o644)
	}
	if err != nil {
		return err
	}
	if len(raw) != 8 {
		return errors.New("sim: rom record must be 8 bytes")
	}
	b.SetROM(binary.LittleEndian.Uint32(raw[0:4]), binary.LittleEndian.Uint32(raw[4:8]))
	return nil
}

// Journal returns the recorded handoff steps in order.
func (b *SimBoard) Journal() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.journal))
	copy(out, b.journal)
	return out
}

func (b *SimBoard) record(step string) {
	b.mu.Lock()
	b.journal = append(b.journal, step)
	b.mu.Unlock()
}

func (b *SimBoard) exit(code int) {
	if b.ExitFunc != nil {
		b.ExitFunc(code)
	}
}

func (b *SimBoard) SoftReset() {
	b.record("soft_reset")
	b.exit(ExitSoftReset)
}

func (b *SimBoard) DisableInterrupts() { b.record("irq_off") }

func (b *SimBoard) ShutdownRetention() error {
	b.record("retention_off")
	return b.RetentionErr
}

func (b *SimBoard) ShutdownClocks() { b.record("clocks_off") }

func (b *SimBoard) ClearPending() { b.record("pending_cleared") }

func (b *SimBoard) VectorBase() uintptr { return simVectorBase }

func (b *SimBoard) ReadVector(base uintptr) (sp, entry uint32) {
	b.record("read_vector")
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.romSP, b.romEntry
}

func (b *SimBoard) SetStack(sp uint32) {
	b.record("set_stack")
	b.mu.Lock()
	b.handoffSP = sp
	b.mu.Unlock()
}

func (b *SimBoard) Jump(entry uint32) {
	b.record("jump")
	b.writeHandoffRecord(entry)
	b.exit(ExitHandoff)
}

// writeHandoffRecord preserves what the bootloader would have seen:
// the magic word, the installed stack pointer, the entry address.
func (b *SimBoard) writeHandoffRecord(entry uint32) {
	if b.HandoffPath == "" {
		return
	}
	b.mu.Lock()
	sp := b.handoffSP
	b.mu.Unlock()

	var rec [12]byte
	binary.LittleEndian.PutUint32(rec[0:4], dfu.Magic)
	binary.LittleEndian.PutUint32(rec[4:8], sp)
	binary.LittleEndian.PutUint32(rec[8:12], entry)
	if err := os.WriteFile(b.HandoffPath, rec[:], 0o644); err != nil {
		println("Warn: sim: handoff record:", err.Error())
	}
}

// -----------------------------------------------------------------------------
// Status LED
// -----------------------------------------------------------------------------

type simIndicator struct {
	mu      sync.Mutex
	lit     bool
	toggles int
}

func (l *simIndicator) On() {
	l.mu.Lock()
	l.lit = true
	l.mu.Unlock()
}

func (l *simIndicator) Off() {
	l.mu.Lock()
	l.lit = false
	l.mu.Unlock()
}

func (l *simIndicator) Toggle() {
	l.mu.Lock()
	l.lit = !l.lit
	l.toggles++
	l.mu.Unlock()
}

func (l *simIndicator) Lit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lit
}

func (l *simIndicator) Toggles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.toggles
}

// -----------------------------------------------------------------------------
// Console transport over byte rings
// -----------------------------------------------------------------------------

// RingTransport is the device end of the simulated console. The host
// side feeds In and drains Out, which keeps uncancellable stdin reads
// out of the terminal's receive path.
type RingTransport struct {
	In  *shmring.Ring // host -> device
	Out *shmring.Ring // device -> host
}

func NewRingTransport() *RingTransport {
	return &RingTransport{In: shmring.New(1024), Out: shmring.New(4096)}
}

func (t *RingTransport) Write(p []byte) (int, error) {
	return t.Out.WriteAllContext(context.Background(), p)
}

func (t *RingTransport) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	return t.In.ReadSomeContext(ctx, p)
}

func (t *RingTransport) Connected() bool { return true }

// -----------------------------------------------------------------------------
// Sensor model
// -----------------------------------------------------------------------------

// Command and status bytes of the part being modeled.
const (
	ahtCmdTrigger    = 0xAC
	ahtCmdInitialize = 0xBE
	ahtCmdSoftReset  = 0xBA
	ahtCmdStatus     = 0x71

	ahtStatusBusy       = 0x80
	ahtStatusCalibrated = 0x08
)

// simConversionTime is how long the modeled part stays busy after a
// trigger. Short enough that a driver waiting its nominal conversion
// time always finds data ready.
const simConversionTime = 10 * time.Millisecond

// simAHT20 models the sensor's bus protocol closely enough for the
// real driver to run against it. Like the part, it clears the busy
// flag by wall time rather than by read count.
type simAHT20 struct {
	mu        sync.Mutex
	deciC     int32
	deciRH    int32
	busyUntil time.Time
}

func newSimAHT20(deciC, deciRH int32) *simAHT20 {
	return &simAHT20{deciC: deciC, deciRH: deciRH}
}

func (s *simAHT20) set(deciC, deciRH int32) {
	s.mu.Lock()
	s.deciC, s.deciRH = deciC, deciRH
	s.mu.Unlock()
}

func (s *simAHT20) Tx(addr uint16, w, r []byte) error {
	if addr != aht20.Address {
		return errors.New("sim i2c: no device at address")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case len(w) > 0 && w[0] == ahtCmdStatus && len(r) >= 1:
		r[0] = s.status()
		return nil
	case len(w) > 0 && w[0] == ahtCmdInitialize:
		return nil
	case len(w) > 0 && w[0] == ahtCmdSoftReset:
		s.busyUntil = time.Time{}
		return nil
	case len(w) > 0 && w[0] == ahtCmdTrigger:
		s.busyUntil = time.Now().Add(simConversionTime)
		return nil
	case len(w) == 0 && len(r) >= 7:
		s.fill(r)
		return nil
	}
	return errors.New("sim i2c: unsupported transaction")
}

func (s *simAHT20) status() byte {
	st := byte(ahtStatusCalibrated)
	if time.Now().Before(s.busyUntil) {
		st |= ahtStatusBusy
	}
	return st
}

func (s *simAHT20) fill(r []byte) {
	if time.Now().Before(s.busyUntil) {
		r[0] = ahtStatusCalibrated | ahtStatusBusy
		return
	}
	r[0] = ahtStatusCalibrated

	// Encode high so the driver's fixed-point decode lands back on the
	// configured deci values exactly.
	hraw := uint32((s.deciRH*0x100000 + 999) / 1000)
	traw := uint32(((s.deciC+500)*0x100000 + 1999) / 2000)

	r[1] = byte(hraw >> 12)
	r[2] = byte(hraw >> 4)
	r[3] = byte(hraw<<4) | byte((traw>>16)&0x0F)
	r[4] = byte(traw >> 8)
	r[5] = byte(traw)
	r[6] = 0 // crc, unchecked
}
