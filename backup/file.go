//go:build !tinygo

package backup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// FileBank persists the bank across process restarts, standing in for
// warm-reset survival when the node runs as a host process. Every write
// rewrites the backing file atomically (tmp + rename).
type FileBank struct {
	path  string
	slots []uint32
}

// OpenFileBank loads path or, when absent, creates a zeroed bank of n
// slots. A file of the wrong size is treated as corrupt.
func OpenFileBank(path string, n int) (*FileBank, error) {
	b := &FileBank{path: path, slots: make([]uint32, n)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := b.flush(); err != nil {
			return nil, err
		}
		return b, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) != 4*n {
		return nil, fmt.Errorf("backup: %s holds %d bytes, want %d", path, len(raw), 4*n)
	}
	for i := range b.slots {
		b.slots[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return b, nil
}

func (b *FileBank) ReadRegister(i int) uint32 {
	b.check(i)
	return b.slots[i]
}

// WriteRegister mirrors a hardware register write and therefore has no
// error result; an unwritable state directory makes the simulated
// retention meaningless, so persistence failure is fatal.
func (b *FileBank) WriteRegister(i int, v uint32) {
	b.check(i)
	b.slots[i] = v
	if err := b.flush(); err != nil {
		panic("backup: persist failed: " + err.Error())
	}
}

func (b *FileBank) RegisterCount() int { return len(b.slots) }

func (b *FileBank) check(i int) {
	if i < 0 || i >= len(b.slots) {
		panic("backup: register index out of range")
	}
}

func (b *FileBank) flush() error {
	raw := make([]byte, 4*len(b.slots))
	for i, v := range b.slots {
		binary.LittleEndian.PutUint32(raw[4*i:], v)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}
