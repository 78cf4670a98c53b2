// Package aht20 drives the AHT20 temperature/humidity sensor over I2C.
//
// Measurements are two-phase:
//
//	d.Trigger()          // start a conversion (fast)
//	err := d.Collect(&s) // fetch when ready; ErrNotReady while busy
//
// d.Read() wraps both with bounded polling. All conversions are
// fixed-point, returning tenths of a unit (deci-degC, deci-%RH).
//
// The bus's Tx must issue the write and the read inside one
// transaction (repeated start) when both buffers are given.
package aht20

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"swarmnode-go/x/mathx"
)

// Address is the part's fixed I2C address.
const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

var (
	ErrTimeout  = errors.New("aht20: timeout")
	ErrNotReady = errors.New("aht20: not ready")
)

// Sample holds one raw conversion.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

// DeciRelHumidity converts the raw 20-bit value to tenths of %RH,
// rounded to the nearest tenth.
func (s Sample) DeciRelHumidity() int32 {
	return int32(mathx.RoundDiv(s.RawHumidity*1000, 0x100000))
}

// DeciCelsius converts the raw 20-bit value to tenths of a degree,
// rounded to the nearest tenth.
func (s Sample) DeciCelsius() int32 {
	return int32(mathx.RoundDiv(s.RawTemp*2000, 0x100000)) - 500
}

// Config tunes the polling behaviour. Zero fields get defaults.
type Config struct {
	// Address defaults to the part's fixed address.
	Address uint16
	// PollInterval separates Collect attempts inside Read. Default 15ms.
	PollInterval time.Duration
	// CollectTimeout bounds the total wait in Read. Default 250ms.
	CollectTimeout time.Duration
	// TriggerHint is the nominal conversion time, for callers that
	// schedule Collect themselves. Default 80ms. Trigger never sleeps.
	TriggerHint time.Duration
}

// Device is one sensor on an already configured bus.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg  Config
	buf  [7]byte
	last Sample
}

// New binds a device object to a bus. It does not touch the hardware.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure applies optional config and initialises the part if its
// calibrated flag is down.
func (d *Device) Configure(cfgs ...Config) {
	c := Config{}
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Millisecond
	}
	if c.CollectTimeout <= 0 {
		c.CollectTimeout = 250 * time.Millisecond
	}
	if c.TriggerHint <= 0 {
		c.TriggerHint = 80 * time.Millisecond
	}
	d.cfg = c

	st, err := d.Status()
	if err == nil && st&statusCalibrated != 0 {
		return
	}
	// Not calibrated or not answering yet, force initialisation.
	_ = d.bus.Tx(d.Address, []byte{cmdInitialize, 0x08, 0x00}, nil)
	time.Sleep(10 * time.Millisecond)
}

// Reset issues a soft reset. The part wants ~20ms before the next
// command.
func (d *Device) Reset() {
	_ = d.bus.Tx(d.Address, []byte{cmdSoftReset}, nil)
}

// Status reads the status byte.
func (d *Device) Status() (byte, error) {
	data := []byte{0}
	if err := d.bus.Tx(d.Address, []byte{cmdStatus}, data); err != nil {
		return 0, err
	}
	return data[0], nil
}

// Trigger starts a conversion. It returns as soon as the command is on
// the wire.
func (d *Device) Trigger() error {
	if d.cfg.PollInterval == 0 {
		d.Configure()
	}
	return d.bus.Tx(d.Address, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// TriggerHint reports how long a conversion nominally takes.
func (d *Device) TriggerHint() time.Duration {
	if d.cfg.TriggerHint > 0 {
		return d.cfg.TriggerHint
	}
	return 80 * time.Millisecond
}

// Collect reads one conversion into out and the device cache. While
// the part is still converting it returns ErrNotReady. Bus errors pass
// through as-is.
func (d *Device) Collect(out *Sample) error {
	data := d.buf[:]
	if err := d.bus.Tx(d.Address, nil, data); err != nil {
		return err
	}
	if (data[0]&statusCalibrated) == 0 || (data[0]&statusBusy) != 0 {
		return ErrNotReady
	}

	d.last = Sample{
		RawHumidity: (uint32(data[1]) << 12) | (uint32(data[2]) << 4) | (uint32(data[3]) >> 4),
		RawTemp:     (uint32(data[3]&0x0F) << 16) | (uint32(data[4]) << 8) | uint32(data[5]),
	}
	if out != nil {
		*out = d.last
	}
	return nil
}

// Read runs a full cycle: Trigger, then poll Collect until it succeeds
// or the configured timeout lapses.
func (d *Device) Read() error {
	if err := d.Trigger(); err != nil {
		return err
	}
	deadline := time.Now().Add(d.cfg.CollectTimeout)
	for {
		err := d.Collect(nil)
		switch err {
		case nil:
			return nil
		case ErrNotReady:
			if time.Now().After(deadline) {
				return ErrTimeout
			}
			time.Sleep(d.cfg.PollInterval)
		default:
			return err
		}
	}
}

// Accessors over the last collected sample.

func (d *Device) LastSample() Sample     { return d.last }
func (d *Device) DeciRelHumidity() int32 { return d.last.DeciRelHumidity() }
func (d *Device) DeciCelsius() int32     { return d.last.DeciCelsius() }
