package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"swarmnode-go/bus"
	"swarmnode-go/types"
)

type fakeLED struct {
	mu   sync.Mutex
	lit  bool
	ons  int
	offs int
}

func (f *fakeLED) On() {
	f.mu.Lock()
	f.lit = true
	f.ons++
	f.mu.Unlock()
}

func (f *fakeLED) Off() {
	f.mu.Lock()
	f.lit = false
	f.offs++
	f.mu.Unlock()
}

func (f *fakeLED) Toggle() {
	f.mu.Lock()
	f.lit = !f.lit
	f.mu.Unlock()
}

func (f *fakeLED) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ons, f.offs
}

func TestBeatsPublishAndBlink(t *testing.T) {
	b := bus.NewBus(8)

	// Retained config lands before the service subscribes, so the first
	// beat already runs at the configured interval.
	cfg := b.NewConnection("test-config")
	cfg.Publish(cfg.NewMessage(bus.T("config", "heartbeat"), map[string]any{"interval": 0.02}, true))

	led := &fakeLED{}
	svc := New(led)
	svc.on = time.Millisecond

	watcher := b.NewConnection("test-watch")
	beats := watcher.Subscribe(bus.T("node", "heartbeat"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var counts []uint32
	deadline := time.After(2 * time.Second)
	for len(counts) < 3 {
		select {
		case msg := <-beats.Channel():
			hb, ok := msg.Payload.(types.Heartbeat)
			if !ok {
				t.Fatalf("payload type %T", msg.Payload)
			}
			if !msg.Retained {
				t.Fatal("beat not retained")
			}
			counts = append(counts, hb.Count)
		case <-deadline:
			t.Fatalf("saw %d beats before deadline", len(counts))
		}
	}
	for i := 1; i < len(counts); i++ {
		if counts[i] != counts[i-1]+1 {
			t.Fatalf("counts not monotonic: %v", counts)
		}
	}
	// The publish precedes the blink, so only the first two blinks are
	// guaranteed complete by now.
	ons, offs := led.counts()
	if ons < 2 || offs < 2 {
		t.Fatalf("blink counts ons=%d offs=%d", ons, offs)
	}
}

func TestIntervalReconfiguredMidRun(t *testing.T) {
	b := bus.NewBus(8)
	led := &fakeLED{}
	svc := New(led)
	svc.on = time.Millisecond

	watcher := b.NewConnection("test-watch")
	beats := watcher.Subscribe(bus.T("node", "heartbeat"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Default interval is a full second; dropping it to 10ms must take
	// effect without waiting the old interval out.
	cfg := b.NewConnection("test-config")
	cfg.Publish(cfg.NewMessage(bus.T("config", "heartbeat"), map[string]any{"interval": 0.01}, true))

	start := time.Now()
	select {
	case <-beats.Channel():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no beat after reconfigure")
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("beat took %v, reconfigure did not shorten the interval", elapsed)
	}
}

func TestIntervalAcceptsIntSeconds(t *testing.T) {
	if iv, ok := intervalFrom(map[string]any{"interval": 2}); !ok || iv != 2*time.Second {
		t.Fatalf("int payload: iv=%v ok=%v", iv, ok)
	}
	if iv, ok := intervalFrom(map[string]any{"interval": 0.5}); !ok || iv != 500*time.Millisecond {
		t.Fatalf("float payload: iv=%v ok=%v", iv, ok)
	}
	if _, ok := intervalFrom(map[string]any{"interval": -1}); ok {
		t.Fatal("negative interval accepted")
	}
	if _, ok := intervalFrom("nope"); ok {
		t.Fatal("non-map payload accepted")
	}
}

func TestStopTurnsIndicatorOff(t *testing.T) {
	b := bus.NewBus(8)
	led := &fakeLED{}
	svc := New(led)
	svc.on = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		led.mu.Lock()
		lit, offs := led.lit, led.offs
		led.mu.Unlock()
		if !lit && offs > 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("indicator still lit after stop")
}
