package sensors

import (
	"context"
	"errors"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"swarmnode-go/bus"
	"swarmnode-go/drivers/aht20"
	"swarmnode-go/errcode"
	"swarmnode-go/radio"
	"swarmnode-go/types"
)

const testNodeID = 7

// fakeI2C models the aht20 on the wire well enough for the service:
// status, init, trigger commands and data reads. busyReads sets how
// many data reads after a trigger still carry the busy flag.
type fakeI2C struct {
	calibrated bool
	busyReads  int
	pending    int
	hraw, traw uint32
	dead       bool // part absent, every transfer nacks
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	if f.dead {
		return errors.New("nack")
	}
	switch {
	case len(w) > 0 && w[0] == 0x71 && len(r) >= 1: // status
		r[0] = f.status()
	case len(w) > 0 && w[0] == 0xBE: // initialise
		f.calibrated = true
	case len(w) > 0 && w[0] == 0xAC: // trigger
		f.pending = f.busyReads
	case len(w) == 0 && len(r) >= 7: // data
		f.fill(r)
	}
	return nil
}

func (f *fakeI2C) status() byte {
	st := byte(0)
	if f.calibrated {
		st |= 0x08
	}
	if f.pending > 0 {
		st |= 0x80
	}
	return st
}

func (f *fakeI2C) fill(r []byte) {
	if f.pending > 0 {
		f.pending--
		r[0] = 0x08 | 0x80
		return
	}
	r[0] = 0x08
	r[1] = byte(f.hraw >> 12)
	r[2] = byte(f.hraw >> 4)
	r[3] = byte(f.hraw<<4) | byte((f.traw>>16)&0x0F)
	r[4] = byte(f.traw >> 8)
	r[5] = byte(f.traw)
}

func startOn(t *testing.T, b *bus.Bus, i2c drivers.I2C) {
	t.Helper()
	s := New(i2c, testNodeID)
	s.DriverConfig = aht20.Config{
		PollInterval:   time.Millisecond,
		CollectTimeout: 20 * time.Millisecond,
		TriggerHint:    time.Millisecond,
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := s.Start(ctx, b.NewConnection("sensors")); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func startService(t *testing.T, i2c drivers.I2C) *bus.Bus {
	t.Helper()
	b := bus.NewBus(16)
	startOn(t, b, i2c)
	return b
}

// requestUntil retries a read request until the service answers. The
// loop only subscribes after its hardware probe, so a test's first
// request can race it.
func requestUntil(t *testing.T, conn *bus.Connection, kind string) *bus.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		rep, err := conn.RequestWait(ctx, conn.NewMessage(bus.T("sensor", "read", kind), nil, false))
		cancel()
		if err == nil {
			return rep
		}
		if time.Now().After(deadline) {
			t.Fatalf("no reply for %q: %v", kind, err)
			return nil
		}
	}
}

func TestReadRequestRoundTrip(t *testing.T) {
	f := &fakeI2C{calibrated: true, hraw: 471860, traw: 379585}
	b := startService(t, f)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	rep := requestUntil(t, conn, "temperature")
	r, ok := rep.Payload.(types.Reading)
	if !ok {
		t.Fatalf("payload = %#v, want Reading", rep.Payload)
	}
	if r.Sensor != "aht20" || r.DeciC != 224 || r.DeciRH != 450 {
		t.Fatalf("reading = %+v", r)
	}
	if r.TSMs <= 0 {
		t.Fatalf("timestamp = %d", r.TSMs)
	}

	for _, kind := range []string{"humidity", "all"} {
		rep := requestUntil(t, conn, kind)
		if _, ok := rep.Payload.(types.Reading); !ok {
			t.Fatalf("%s payload = %#v, want Reading", kind, rep.Payload)
		}
	}
}

func TestUnknownSensorKind(t *testing.T) {
	f := &fakeI2C{calibrated: true, hraw: 1, traw: 1}
	b := startService(t, f)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	for _, kind := range []string{"light", "pressure", "co2"} {
		rep := requestUntil(t, conn, kind)
		if code, ok := rep.Payload.(errcode.Code); !ok || code != errcode.UnknownSensor {
			t.Fatalf("%s reply = %#v, want unknown_sensor", kind, rep.Payload)
		}
	}
}

func TestNoBusMeansUnavailable(t *testing.T) {
	b := startService(t, nil)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	rep := requestUntil(t, conn, "temperature")
	if code, ok := rep.Payload.(errcode.Code); !ok || code != errcode.Unavailable {
		t.Fatalf("reply = %#v, want unavailable", rep.Payload)
	}
}

func TestSilentPartGoesUnavailable(t *testing.T) {
	b := startService(t, &fakeI2C{dead: true})
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	rep := requestUntil(t, conn, "all")
	if code, ok := rep.Payload.(errcode.Code); !ok || code != errcode.Unavailable {
		t.Fatalf("reply = %#v, want unavailable", rep.Payload)
	}
}

func TestBusyPartReportsNotReady(t *testing.T) {
	f := &fakeI2C{calibrated: true, busyReads: 1 << 20}
	b := startService(t, f)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	rep := requestUntil(t, conn, "temperature")
	if code, ok := rep.Payload.(errcode.Code); !ok || code != errcode.NotReady {
		t.Fatalf("reply = %#v, want not_ready", rep.Payload)
	}
}

func TestPollPublishesRetainedAndBeacon(t *testing.T) {
	f := &fakeI2C{calibrated: true, hraw: 471860, traw: 379585}
	b := bus.NewBus(16)
	cfg := b.NewConnection("cfg")
	cfg.Publish(cfg.NewMessage(bus.T("config", "sensors"), map[string]any{"poll_interval": 0.005}, true))

	watch := b.NewConnection("watch")
	dataSub := watch.Subscribe(bus.T("sensor", "data", "aht20"))
	beaconSub := watch.Subscribe(bus.T("radio", "beacon"))
	startOn(t, b, f)

	var msg *bus.Message
	select {
	case msg = <-dataSub.Channel():
	case <-time.After(time.Second):
		t.Fatal("no data publication")
	}
	if !msg.Retained {
		t.Fatal("data publication not retained")
	}
	r, ok := msg.Payload.(types.Reading)
	if !ok || r.DeciC != 224 || r.DeciRH != 450 {
		t.Fatalf("reading = %#v", msg.Payload)
	}

	var prev uint16
	for i := 0; i < 2; i++ {
		select {
		case msg = <-beaconSub.Channel():
		case <-time.After(time.Second):
			t.Fatal("no beacon")
		}
		if !msg.Retained {
			t.Fatal("beacon not retained")
		}
		raw, ok := msg.Payload.([]byte)
		if !ok || len(raw) != radio.FrameSize {
			t.Fatalf("beacon payload = %#v", msg.Payload)
		}
		fr, err := radio.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if fr.Header.Sender != testNodeID || fr.Header.Target != radio.Broadcast {
			t.Fatalf("header = %+v", fr.Header)
		}
		if fr.Header.Seq <= prev {
			t.Fatalf("seq %d after %d", fr.Header.Seq, prev)
		}
		prev = fr.Header.Seq
		beat, err := radio.DecodeBeacon(&fr)
		if err != nil {
			t.Fatalf("beacon decode: %v", err)
		}
		if beat.DeciC != 224 || beat.DeciRH != 450 {
			t.Fatalf("beacon reading = %+v", beat)
		}
	}
}

func TestPollIntervalReconfiguredMidRun(t *testing.T) {
	f := &fakeI2C{calibrated: true, hraw: 1, traw: 1}
	b := bus.NewBus(16)
	watch := b.NewConnection("watch")
	dataSub := watch.Subscribe(bus.T("sensor", "data", "aht20"))
	startOn(t, b, f)

	conn := b.NewConnection("test")
	defer conn.Disconnect()
	requestUntil(t, conn, "temperature") // proves the loop is up

	// The default cadence is seconds away; the config push must bring
	// the next poll forward.
	cfg := b.NewConnection("cfg")
	cfg.Publish(cfg.NewMessage(bus.T("config", "sensors"), map[string]any{"poll_interval": 0.005}, false))

	select {
	case <-dataSub.Channel():
	case <-time.After(time.Second):
		t.Fatal("poll did not speed up")
	}
}

func TestBeaconCanBeDisabled(t *testing.T) {
	f := &fakeI2C{calibrated: true, hraw: 1, traw: 1}
	b := bus.NewBus(16)
	cfg := b.NewConnection("cfg")
	cfg.Publish(cfg.NewMessage(bus.T("config", "sensors"), map[string]any{"poll_interval": 0.005, "beacon": false}, true))

	watch := b.NewConnection("watch")
	dataSub := watch.Subscribe(bus.T("sensor", "data", "aht20"))
	beaconSub := watch.Subscribe(bus.T("radio", "beacon"))
	startOn(t, b, f)

	for i := 0; i < 2; i++ {
		select {
		case <-dataSub.Channel():
		case <-time.After(time.Second):
			t.Fatal("no data publication")
		}
	}
	select {
	case msg := <-beaconSub.Channel():
		t.Fatalf("unexpected beacon: %#v", msg.Payload)
	default:
	}
}
