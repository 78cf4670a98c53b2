package types

// ---- Boot task ----

// BootTask is the one-shot action the node performs on its next boot.
// Values are persisted raw in the retention bank, so they must stay
// stable across firmware versions.
type BootTask uint32

const (
	TaskNone BootTask = iota
	TaskUpdateFirmware
	TaskRunSelfTest
	TaskDFUReboot
)

// BootTaskFromValue decodes a persisted slot value. The decode is total:
// anything written by newer or corrupted firmware folds to TaskNone, so
// a stale slot can never wedge the boot path.
func BootTaskFromValue(v uint32) BootTask {
	switch BootTask(v) {
	case TaskUpdateFirmware, TaskRunSelfTest, TaskDFUReboot:
		return BootTask(v)
	default:
		return TaskNone
	}
}

// Value returns the raw register encoding of the task.
func (t BootTask) Value() uint32 { return uint32(t) }

func (t BootTask) String() string {
	switch t {
	case TaskNone:
		return "none"
	case TaskUpdateFirmware:
		return "update_firmware"
	case TaskRunSelfTest:
		return "run_self_test"
	case TaskDFUReboot:
		return "dfu_reboot"
	default:
		return "unknown"
	}
}

// ---- Bus payloads ----

// Reading is one environmental sample in fixed point, small types to
// suit TinyGo. Published retained on sensor/data/<sensor> and returned
// on sensor/read/<kind> replies.
type Reading struct {
	Sensor string `json:"sensor"`  // e.g. "aht20"
	DeciC  int16  `json:"deci_c"`  // tenths of °C (231 => 23.1°C)
	DeciRH int16  `json:"deci_rh"` // tenths of %RH (504 => 50.4%)
	TSMs   int64  `json:"ts_ms"`
}

// Heartbeat is the liveness beat, published retained on node/heartbeat.
type Heartbeat struct {
	Count uint32 `json:"count"`
	TSMs  int64  `json:"ts_ms"`
}
