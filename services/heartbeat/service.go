// Package heartbeat blinks the claimed indicator and publishes a
// retained liveness beat.
package heartbeat

import (
	"context"
	"time"

	"swarmnode-go/bus"
	"swarmnode-go/device"
	"swarmnode-go/types"
	"swarmnode-go/x/timex"
)

var (
	topicConfig = bus.Topic{"config", "heartbeat"}
	topicBeat   = bus.Topic{"node", "heartbeat"}
)

const defaultInterval = 1 * time.Second

type Service struct {
	led device.Indicator
	on  time.Duration // indicator on-time per beat
}

func New(led device.Indicator) *Service {
	return &Service{led: led, on: 100 * time.Millisecond}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)

	interval := defaultInterval
	tick := time.NewTimer(interval)
	defer tick.Stop()

	var count uint32
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			s.led.Off()
			return
		case <-tick.C:
			count++
			s.beat(conn, count)
			tick.Reset(interval)
		case msg := <-cfgSub.Channel():
			iv, ok := intervalFrom(msg.Payload)
			if !ok {
				println("Warn: heartbeat: unusable config payload")
				continue
			}
			interval = iv
			timex.ResetTimer(tick, interval)
			println("Info: heartbeat interval set to", int64(interval/time.Millisecond), "ms")
		}
	}
}

func (s *Service) beat(conn *bus.Connection, count uint32) {
	conn.Publish(conn.NewMessage(topicBeat, types.Heartbeat{Count: count, TSMs: timex.NowMs()}, true))
	println("Info: heartbeat", count)
	s.led.On()
	time.Sleep(s.on)
	s.led.Off()
}

// intervalFrom pulls the interval in seconds out of a config payload.
// JSON configs decode numbers as float64 or int depending on the
// decoder, so both arrive here.
func intervalFrom(payload any) (time.Duration, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := m["interval"].(type) {
	case float64:
		if v <= 0 {
			return 0, false
		}
		return time.Duration(v * float64(time.Second)), true
	case int:
		if v <= 0 {
			return 0, false
		}
		return time.Duration(v) * time.Second, true
	}
	return 0, false
}

// Start launches the heartbeat loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
