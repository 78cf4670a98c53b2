// Package dfu performs the handoff from running firmware to the
// ROM-resident bootloader. The sequence is fixed and ordered: once it
// starts, the firmware image is abandoned and control does not come
// back.
package dfu

// Magic marks a deliberate DFU entry. Hardware ports do not need it;
// the simulator writes it into its handoff record so a harness can tell
// a handoff from a plain exit.
const Magic uint32 = 0xDF00B007

// Port is the platform surface the handoff drives. Implementations live
// with their boards; keeping the surface this narrow lets the ordering
// be verified against a fake.
type Port interface {
	// DisableInterrupts masks all interrupts, including the tick source.
	DisableInterrupts()
	// ShutdownRetention de-initializes the retention/RTC block.
	// Best-effort: a failure is logged by the caller, never propagated.
	ShutdownRetention() error
	// ShutdownClocks walks the clock tree back toward its reset state.
	ShutdownClocks()
	// ClearPending clears every pending interrupt flag.
	ClearPending()
	// VectorBase is the fixed ROM location of the bootloader's vector
	// table.
	VectorBase() uintptr
	// ReadVector reads the bootloader's initial stack pointer and entry
	// address from base.
	ReadVector(base uintptr) (sp, entry uint32)
	// SetStack installs the bootloader's stack pointer.
	SetStack(sp uint32)
	// Jump transfers control to entry. It must not return.
	Jump(entry uint32)
}

// Enter runs the handoff against p and does not return. The interrupt
// mask is never undone: from here the only ways forward are the
// bootloader or a reset.
func Enter(p Port) {
	println("Info: dfu: handing off to ROM bootloader")

	p.DisableInterrupts()
	if err := p.ShutdownRetention(); err != nil {
		println("Warn: dfu: retention shutdown:", err.Error())
	}
	p.ShutdownClocks()
	p.ClearPending()

	base := p.VectorBase()
	sp, entry := p.ReadVector(base)
	p.SetStack(sp)
	p.Jump(entry)

	panic("dfu: bootloader entry returned")
}
