// Package backup provides access to the retention register bank: the
// small set of 32-bit slots that survive a warm reset. Slot 0 carries
// the staged boot task, slot 1 counts boots; the rest of the bank is
// left alone for other subsystems.
package backup

import "swarmnode-go/types"

// Well-known slots.
const (
	SlotBootTask    = 0
	SlotBootCounter = 1 // bumped once per boot by the entrypoints
)

// Registers is a warm-reset-surviving bank of 32-bit slots. Index range
// is a hard contract: implementations panic on out-of-range access.
type Registers interface {
	ReadRegister(index int) uint32
	WriteRegister(index int, value uint32)
	RegisterCount() int
}

// Domain wraps a claimed register bank and hands out typed views of its
// well-known slots.
type Domain struct {
	regs Registers
}

func NewDomain(regs Registers) *Domain { return &Domain{regs: regs} }

// Registers exposes the underlying bank for diagnostics.
func (d *Domain) Registers() Registers { return d.regs }

// BootTask returns the accessor for the boot-task slot.
func (d *Domain) BootTask() *TaskAccessor { return &TaskAccessor{regs: d.regs} }

// TaskAccessor reads and stages the one-shot boot task in slot 0.
type TaskAccessor struct {
	regs Registers
}

// ReadAndClear consumes the staged task. The slot is rewritten to
// TaskNone before the old value is decoded, so a task observed once is
// never observed again, whatever the caller does with it.
func (a *TaskAccessor) ReadAndClear() types.BootTask {
	raw := a.regs.ReadRegister(SlotBootTask)
	a.regs.WriteRegister(SlotBootTask, types.TaskNone.Value())
	return types.BootTaskFromValue(raw)
}

// Write stages a task for the next boot.
func (a *TaskAccessor) Write(t types.BootTask) {
	a.regs.WriteRegister(SlotBootTask, t.Value())
}
