// Package boot dispatches the one-shot task recovered from the
// retention bank. Dispatch runs exactly once per boot, before services
// and peripherals come up, so a staged task cannot race the running
// system.
package boot

import "swarmnode-go/types"

// Hooks binds tasks to their routines. EnterDFU must not return when
// invoked. UpdateFirmware and SelfTest may be nil while their payloads
// ship separately; a missing hook is logged and skipped.
type Hooks struct {
	EnterDFU       func()
	UpdateFirmware func() error
	SelfTest       func() error
}

// Execute runs the routine for task. For TaskDFUReboot with an
// installed hook it does not return.
func Execute(task types.BootTask, h Hooks) {
	switch task {
	case types.TaskNone:
		println("Info: boot task: none")
	case types.TaskUpdateFirmware:
		println("Info: boot task: update_firmware")
		runStub("update_firmware", h.UpdateFirmware)
	case types.TaskRunSelfTest:
		println("Info: boot task: run_self_test")
		runStub("run_self_test", h.SelfTest)
	case types.TaskDFUReboot:
		println("Info: boot task: dfu_reboot, handing off to bootloader")
		if h.EnterDFU == nil {
			println("Warn: no bootloader hook installed, continuing normal boot")
			return
		}
		h.EnterDFU()
	default:
		// Decode is total, so only a direct caller can get here.
		println("Warn: undispatchable boot task", uint32(task))
	}
}

func runStub(name string, fn func() error) {
	if fn == nil {
		println("Warn:", name, "handler not installed, skipping")
		return
	}
	if err := fn(); err != nil {
		println("Warn:", name, "failed:", err.Error())
	}
}
