package backup

import (
	"testing"

	"swarmnode-go/types"
)

func TestReadAndClearConsumesTask(t *testing.T) {
	bank := NewMemBank(8)
	acc := NewDomain(bank).BootTask()

	acc.Write(types.TaskDFUReboot)
	if got := acc.ReadAndClear(); got != types.TaskDFUReboot {
		t.Fatalf("first read = %v, want TaskDFUReboot", got)
	}
	if got := acc.ReadAndClear(); got != types.TaskNone {
		t.Fatalf("second read = %v, want TaskNone", got)
	}
	if raw := bank.ReadRegister(SlotBootTask); raw != 0 {
		t.Fatalf("slot not cleared, raw = %#x", raw)
	}
}

func TestReadAndClearUnknownValue(t *testing.T) {
	bank := NewMemBank(8)
	bank.WriteRegister(SlotBootTask, 999)

	acc := NewDomain(bank).BootTask()
	if got := acc.ReadAndClear(); got != types.TaskNone {
		t.Fatalf("unknown value decoded to %v, want TaskNone", got)
	}
	if raw := bank.ReadRegister(SlotBootTask); raw != 0 {
		t.Fatalf("slot not cleared after unknown value, raw = %#x", raw)
	}
}

func TestTaskSlotIsolation(t *testing.T) {
	bank := NewMemBank(8)
	for i := 2; i < bank.RegisterCount(); i++ {
		bank.WriteRegister(i, uint32(0xA0+i))
	}
	bank.WriteRegister(SlotBootCounter, 7)

	acc := NewDomain(bank).BootTask()
	acc.Write(types.TaskRunSelfTest)
	_ = acc.ReadAndClear()

	if got := bank.ReadRegister(SlotBootCounter); got != 7 {
		t.Errorf("boot counter slot disturbed: %d", got)
	}
	for i := 2; i < bank.RegisterCount(); i++ {
		if got := bank.ReadRegister(i); got != uint32(0xA0+i) {
			t.Errorf("slot %d disturbed: %#x", i, got)
		}
	}
}

func TestOutOfRangeAccessPanics(t *testing.T) {
	bank := NewMemBank(8)

	cases := []struct {
		name string
		fn   func()
	}{
		{"read past end", func() { bank.ReadRegister(bank.RegisterCount()) }},
		{"read negative", func() { bank.ReadRegister(-1) }},
		{"write past end", func() { bank.WriteRegister(8, 1) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic, got none")
				}
			}()
			c.fn()
		})
	}
}
