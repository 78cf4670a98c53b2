//go:build rp2040 || rp2350

// Selftest is an on-target check image for the plumbing go test cannot
// reach: the bus under the TinyGo scheduler, the scratch register bank
// and the claims model on real peripherals. Flash it in place of the
// firmware. The LED holds solid when everything passes and blinks on
// failure, with details on the console.
package main

import (
	"context"
	"time"

	"swarmnode-go/backup"
	"swarmnode-go/bus"
	"swarmnode-go/device"
	"swarmnode-go/errcode"
	"swarmnode-go/types"
	"swarmnode-go/x/fmtx"
)

func logf(format string, a ...any) { println(fmtx.Sprintf(format, a...)) }

func expectPayload(sub *bus.Subscription, want any, timeout time.Duration) bool {
	select {
	case got := <-sub.Channel():
		return got.Payload == want
	case <-time.After(timeout):
		return false
	}
}

func expectNone(sub *bus.Subscription, timeout time.Duration) bool {
	select {
	case <-sub.Channel():
		return false
	case <-time.After(timeout):
		return true
	}
}

func checkPubSub() bool {
	b := bus.NewBus(4)
	c := b.NewConnection("selftest")
	sub := c.Subscribe(bus.T("node", "heartbeat"))
	c.Publish(c.NewMessage(bus.T("node", "heartbeat"), "beat", false))
	return expectPayload(sub, "beat", 100*time.Millisecond)
}

func checkRetained() bool {
	b := bus.NewBus(4)
	c := b.NewConnection("selftest")
	c.Publish(c.NewMessage(bus.T("config", "heartbeat"), "cfg", true))
	sub := c.Subscribe(bus.T("config", "heartbeat"))
	if !expectPayload(sub, "cfg", 100*time.Millisecond) {
		return false
	}
	// A nil retained publish clears the slot for later subscribers.
	c.Publish(c.NewMessage(bus.T("config", "heartbeat"), nil, true))
	late := c.Subscribe(bus.T("config", "heartbeat"))
	return expectNone(late, 60*time.Millisecond)
}

func checkWildcards() bool {
	b := bus.NewBus(8)
	c := b.NewConnection("selftest")
	plus := c.Subscribe(bus.T("sensor", "read", "+"))
	hash := c.Subscribe(bus.T("sensor", "#"))
	other := c.Subscribe(bus.T("sensor", "read", "humidity"))

	c.Publish(c.NewMessage(bus.T("sensor", "read", "temperature"), "t", false))
	if !expectPayload(plus, "t", 100*time.Millisecond) {
		return false
	}
	if !expectPayload(hash, "t", 100*time.Millisecond) {
		return false
	}
	if !expectNone(other, 60*time.Millisecond) {
		return false
	}

	c.Publish(c.NewMessage(bus.T("sensor", "data", "aht20"), "d", false))
	if !expectPayload(hash, "d", 100*time.Millisecond) {
		return false
	}
	return expectNone(plus, 60*time.Millisecond)
}

func checkRequestReply() bool {
	b := bus.NewBus(8)
	req := b.NewConnection("requester")
	resp := b.NewConnection("responder")

	sub := resp.Subscribe(bus.T("sensor", "read", "temperature"))
	go func() {
		if msg, ok := <-sub.Channel(); ok {
			resp.Reply(msg, "ok", false)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	m := req.NewMessage(bus.T("sensor", "read", "temperature"), nil, false)
	rep, err := req.RequestWait(ctx, m)
	if err != nil || rep.Payload != "ok" {
		return false
	}
	// The reply must come back on the request's ReplyTo topic.
	if len(m.ReplyTo) == 0 || len(rep.Topic) != len(m.ReplyTo) {
		return false
	}
	for i := range rep.Topic {
		if rep.Topic[i] != m.ReplyTo[i] {
			return false
		}
	}
	return true
}

func checkRequestTimeout() bool {
	b := bus.NewBus(4)
	c := b.NewConnection("selftest")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.RequestWait(ctx, c.NewMessage(bus.T("sensor", "read", "absent"), nil, false))
	return err != nil
}

func checkTopicGuard() (ok bool) {
	defer func() { ok = recover() != nil }()
	_ = bus.T([]byte{1, 2, 3})
	return false
}

func checkBootTaskDecode() bool {
	for v := uint32(0); v < 8; v++ {
		got := types.BootTaskFromValue(v)
		if v <= 3 && got.Value() != v {
			return false
		}
		if v > 3 && got != types.TaskNone {
			return false
		}
	}
	return types.BootTaskFromValue(0xDEADBEEF) == types.TaskNone
}

// checkRegisterBank writes a marker pattern through every slot and
// reads it back, restoring the previous contents after.
func checkRegisterBank(regs backup.Registers) bool {
	n := regs.RegisterCount()
	saved := make([]uint32, n)
	for i := 0; i < n; i++ {
		saved[i] = regs.ReadRegister(i)
	}
	defer func() {
		for i := 0; i < n; i++ {
			regs.WriteRegister(i, saved[i])
		}
	}()

	for i := 0; i < n; i++ {
		regs.WriteRegister(i, 0xA5A50000|uint32(i))
	}
	for i := 0; i < n; i++ {
		if regs.ReadRegister(i) != 0xA5A50000|uint32(i) {
			return false
		}
	}
	return true
}

// checkTaskRoundTrip stages a task in the live slot and consumes it,
// restoring whatever was there before.
func checkTaskRoundTrip(tasks *backup.TaskAccessor, regs backup.Registers) bool {
	saved := regs.ReadRegister(backup.SlotBootTask)
	defer regs.WriteRegister(backup.SlotBootTask, saved)

	tasks.Write(types.TaskRunSelfTest)
	if got := tasks.ReadAndClear(); got != types.TaskRunSelfTest {
		return false
	}
	// The read consumes: the slot is clear for the next boot.
	return tasks.ReadAndClear() == types.TaskNone
}

func main() {
	time.Sleep(2 * time.Second) // let the USB console enumerate

	mgr := device.NewManager(device.NewBoard())
	led, err := mgr.ClaimIndicator("selftest")
	if err != nil {
		println("Warn: selftest: no indicator:", err.Error())
		for {
			time.Sleep(time.Hour)
		}
	}
	led.On()

	regs, err := mgr.ClaimRetention("selftest")
	if err != nil {
		println("Warn: selftest: no retention bank:", err.Error())
		for {
			time.Sleep(time.Hour)
		}
	}
	tasks := backup.NewDomain(regs).BootTask()

	checks := []struct {
		name string
		fn   func() bool
	}{
		{"pubsub", checkPubSub},
		{"retained", checkRetained},
		{"wildcards", checkWildcards},
		{"request_reply", checkRequestReply},
		{"request_timeout", checkRequestTimeout},
		{"topic_guard", checkTopicGuard},
		{"boot_task_decode", checkBootTaskDecode},
		{"register_bank", func() bool { return checkRegisterBank(regs) }},
		{"task_round_trip", func() bool { return checkTaskRoundTrip(tasks, regs) }},
		{"claim_consumed", func() bool {
			_, err := mgr.ClaimIndicator("intruder")
			return errcode.Of(err) == errcode.Consumed && mgr.OwnerOf(device.ResIndicator) == "selftest"
		}},
		{"register_view", func() bool {
			// The diagnostic view aliases the claimed bank without consuming it.
			v := mgr.RetentionRegisters()
			return v != nil && v.RegisterCount() == regs.RegisterCount()
		}},
	}

	passed, failed := 0, 0
	logf("== selftest: %s ==", device.Selected.Node)
	for _, c := range checks {
		if c.fn() {
			logf("[PASS] %s", c.name)
			passed++
		} else {
			logf("[FAIL] %s", c.name)
			failed++
		}
		time.Sleep(10 * time.Millisecond)
	}
	logf("== done: %d passed, %d failed ==", passed, failed)

	if failed == 0 {
		led.On()
		for {
			time.Sleep(time.Hour)
		}
	}
	for {
		led.Toggle()
		time.Sleep(250 * time.Millisecond)
	}
}
