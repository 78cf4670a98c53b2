package backup

// MemBank is a volatile, slice-backed bank. It backs host tests and the
// simulator's default state.
type MemBank struct {
	slots []uint32
}

func NewMemBank(n int) *MemBank { return &MemBank{slots: make([]uint32, n)} }

func (b *MemBank) ReadRegister(i int) uint32 {
	b.check(i)
	return b.slots[i]
}

func (b *MemBank) WriteRegister(i int, v uint32) {
	b.check(i)
	b.slots[i] = v
}

func (b *MemBank) RegisterCount() int { return len(b.slots) }

func (b *MemBank) check(i int) {
	if i < 0 || i >= len(b.slots) {
		panic("backup: register index out of range")
	}
}
