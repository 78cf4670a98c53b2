package boot

import (
	"errors"
	"testing"

	"swarmnode-go/types"
)

type recorder struct {
	dfu, update, selftest int
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		EnterDFU:       func() { r.dfu++ },
		UpdateFirmware: func() error { r.update++; return nil },
		SelfTest:       func() error { r.selftest++; return nil },
	}
}

func TestExecuteDispatch(t *testing.T) {
	cases := []struct {
		task                  types.BootTask
		dfu, update, selftest int
	}{
		{types.TaskNone, 0, 0, 0},
		{types.TaskUpdateFirmware, 0, 1, 0},
		{types.TaskRunSelfTest, 0, 0, 1},
		{types.TaskDFUReboot, 1, 0, 0},
	}
	for _, c := range cases {
		var r recorder
		Execute(c.task, r.hooks())
		if r.dfu != c.dfu || r.update != c.update || r.selftest != c.selftest {
			t.Errorf("%v dispatched dfu=%d update=%d selftest=%d, want %d/%d/%d",
				c.task, r.dfu, r.update, r.selftest, c.dfu, c.update, c.selftest)
		}
	}
}

func TestExecuteMissingHooksAreSkipped(t *testing.T) {
	// Must not panic, must not hand off anywhere.
	Execute(types.TaskUpdateFirmware, Hooks{})
	Execute(types.TaskRunSelfTest, Hooks{})
	Execute(types.TaskDFUReboot, Hooks{})
}

func TestExecuteStubErrorIsSwallowed(t *testing.T) {
	Execute(types.TaskRunSelfTest, Hooks{
		SelfTest: func() error { return errors.New("rig not attached") },
	})
}

func TestExecuteUndispatchableTask(t *testing.T) {
	var r recorder
	Execute(types.BootTask(42), r.hooks())
	if r.dfu+r.update+r.selftest != 0 {
		t.Fatal("out-of-range task must dispatch nothing")
	}
}
