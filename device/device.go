// Package device owns the board's singleton peripherals and hands them
// out at most once each. Claims are one-way: there is no release, so a
// subsystem that holds a peripheral holds it until reset.
package device

import (
	"context"
	"sync"

	"tinygo.org/x/drivers"

	"swarmnode-go/backup"
	"swarmnode-go/dfu"
	"swarmnode-go/errcode"
)

// Indicator is the board's status LED.
type Indicator interface {
	On()
	Off()
	Toggle()
}

// Transport is a byte link to the host side of the console.
type Transport interface {
	Write(p []byte) (int, error)
	// RecvSomeContext returns at least one byte unless ctx ends first.
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
	// Connected reports whether the host side is attached.
	Connected() bool
}

// Board is one physical or simulated platform. It also carries the
// platform half of the bootloader handoff.
type Board interface {
	Name() string
	Indicator() Indicator
	// SerialTransport brings the console link up. It may block until
	// the host attaches; ctx bounds the wait.
	SerialTransport(ctx context.Context) (Transport, error)
	RetentionRegisters() backup.Registers
	// SensorBus returns the I2C bus the onboard sensors hang off.
	SensorBus() (drivers.I2C, error)
	// SoftReset performs a warm reset. The retention bank survives.
	SoftReset()

	dfu.Port
}

// Claimable resource names, also used in diagnostics output.
const (
	ResIndicator = "indicator"
	ResSerial    = "serial"
	ResRetention = "retention"
	ResSensorBus = "sensor-bus"
)

// Manager tracks claim state for the board's singletons.
type Manager struct {
	mu     sync.Mutex
	board  Board
	owners map[string]string // resource -> owning subsystem
}

func NewManager(b Board) *Manager {
	return &Manager{board: b, owners: make(map[string]string)}
}

// Board exposes the underlying board, for bring-up code only.
func (m *Manager) Board() Board { return m.board }

func (m *Manager) claim(res, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, taken := m.owners[res]; taken {
		return &errcode.E{C: errcode.Consumed, Op: "claim " + res, Msg: res + " held by " + prev}
	}
	m.owners[res] = owner
	return nil
}

func (m *Manager) unclaim(res string) {
	m.mu.Lock()
	delete(m.owners, res)
	m.mu.Unlock()
}

// OwnerOf reports the current holder of a resource, "" when free.
func (m *Manager) OwnerOf(res string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[res]
}

// ClaimIndicator hands the status LED to owner, once.
func (m *Manager) ClaimIndicator(owner string) (Indicator, error) {
	ind := m.board.Indicator()
	if ind == nil {
		return nil, &errcode.E{C: errcode.Unavailable, Op: "claim " + ResIndicator}
	}
	if err := m.claim(ResIndicator, owner); err != nil {
		return nil, err
	}
	return ind, nil
}

// ClaimSerial hands the console transport to owner, once. This is the
// only claim that can suspend: it waits for the host side to attach and
// honors ctx cancellation. A failed bring-up leaves the claim open.
func (m *Manager) ClaimSerial(ctx context.Context, owner string) (Transport, error) {
	if err := m.claim(ResSerial, owner); err != nil {
		return nil, err
	}
	tr, err := m.board.SerialTransport(ctx)
	if err != nil {
		m.unclaim(ResSerial)
		return nil, err
	}
	return tr, nil
}

// ClaimRetention hands the retention bank to owner, once. Boot code
// claims it before anything else runs.
func (m *Manager) ClaimRetention(owner string) (backup.Registers, error) {
	regs := m.board.RetentionRegisters()
	if regs == nil {
		return nil, &errcode.E{C: errcode.Unavailable, Op: "claim " + ResRetention}
	}
	if err := m.claim(ResRetention, owner); err != nil {
		return nil, err
	}
	return regs, nil
}

// ClaimSensorBus hands the sensor I2C bus to owner, once.
func (m *Manager) ClaimSensorBus(owner string) (drivers.I2C, error) {
	if err := m.claim(ResSensorBus, owner); err != nil {
		return nil, err
	}
	bus, err := m.board.SensorBus()
	if err != nil {
		m.unclaim(ResSensorBus)
		return nil, err
	}
	return bus, nil
}

// RetentionRegisters is the non-consuming view of the bank, for
// subsystems that only peek or stage a slot (diagnostics, the dfu
// command). It never conflicts with ClaimRetention.
func (m *Manager) RetentionRegisters() backup.Registers {
	return m.board.RetentionRegisters()
}

// SoftReset performs a warm reset. On hardware it does not return.
func (m *Manager) SoftReset() {
	println("Info: device: soft reset")
	m.board.SoftReset()
}

// EnterBootloader hands control to the ROM bootloader immediately. It
// does not return. Staged entry goes through the boot-task slot and a
// soft reset instead.
func (m *Manager) EnterBootloader() {
	dfu.Enter(m.board)
}
