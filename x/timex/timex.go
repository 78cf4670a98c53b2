package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// ResetTimer rearms a timer safely whether or not it has fired.
func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

// DrainTimer consumes a pending tick, if any.
func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
