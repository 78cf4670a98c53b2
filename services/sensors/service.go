// Package sensors serves environmental readings from the claimed
// sensor bus. It answers sensor/read/<kind> requests on demand and
// publishes a retained sensor/data/aht20 reading on a poll timer,
// with an optional radio beacon per poll.
package sensors

import (
	"context"
	"time"

	"tinygo.org/x/drivers"

	"swarmnode-go/bus"
	"swarmnode-go/drivers/aht20"
	"swarmnode-go/errcode"
	"swarmnode-go/radio"
	"swarmnode-go/types"
	"swarmnode-go/x/mathx"
	"swarmnode-go/x/timex"
)

var (
	topicRead   = bus.Topic{"sensor", "read", "+"}
	topicConfig = bus.Topic{"config", "sensors"}
	topicData   = bus.Topic{"sensor", "data", "aht20"}
	topicBeacon = bus.Topic{"radio", "beacon"}
)

const defaultPollInterval = 5 * time.Second

type Service struct {
	dev    *aht20.Device // nil when the board has no sensor bus
	nodeID uint16
	seq    uint16
	pollIv time.Duration
	beacon bool

	// DriverConfig tunes the underlying driver. Set before Start.
	DriverConfig aht20.Config
}

// New binds the service to its bus. A nil bus is allowed: the service
// still runs and answers every read with unavailable.
func New(i2c drivers.I2C, nodeID uint16) *Service {
	s := &Service{nodeID: nodeID, pollIv: defaultPollInterval, beacon: true}
	if i2c != nil {
		d := aht20.New(i2c)
		s.dev = &d
	}
	return s
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	s.bringUp()

	readSub := conn.Subscribe(topicRead)
	defer conn.Unsubscribe(readSub)
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTimer(s.pollIv)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: sensors service stopping")
			return
		case <-tick.C:
			s.pollOnce(conn)
			tick.Reset(s.pollIv)
		case req := <-readSub.Channel():
			s.handleRead(conn, req)
		case msg := <-cfgSub.Channel():
			if s.applyConfig(msg.Payload) {
				timex.ResetTimer(tick, s.pollIv)
			}
		}
	}
}

// bringUp probes the part once. A silent part leaves the service
// running so reads report unavailable instead of hanging requesters.
func (s *Service) bringUp() {
	if s.dev == nil {
		println("Warn: sensors: no sensor bus, reads will report unavailable")
		return
	}
	s.dev.Configure(s.DriverConfig)
	if _, err := s.dev.Status(); err != nil {
		println("Warn: sensors: aht20 not answering:", err.Error())
		s.dev = nil
		return
	}
	println("Info: sensors: aht20 online")
}

func (s *Service) handleRead(conn *bus.Connection, req *bus.Message) {
	kind, _ := req.Topic[2].(string)
	switch kind {
	case "all", "temperature", "humidity":
		r, code := s.sampleOnce()
		if code != errcode.OK {
			conn.Reply(req, code, false)
			return
		}
		conn.Reply(req, r, false)
	default:
		conn.Reply(req, errcode.UnknownSensor, false)
	}
}

// sampleOnce runs one demand conversion: trigger, wait the nominal
// conversion time, collect exactly once. A part still mid-conversion
// reports not_ready rather than stalling the requester.
func (s *Service) sampleOnce() (types.Reading, errcode.Code) {
	if s.dev == nil {
		return types.Reading{}, errcode.Unavailable
	}
	if err := s.dev.Trigger(); err != nil {
		return types.Reading{}, errcode.Unavailable
	}
	time.Sleep(s.dev.TriggerHint())
	var sm aht20.Sample
	if err := s.dev.Collect(&sm); err != nil {
		if err == aht20.ErrNotReady {
			return types.Reading{}, errcode.NotReady
		}
		return types.Reading{}, errcode.Unavailable
	}
	return readingFrom(sm), errcode.OK
}

func (s *Service) pollOnce(conn *bus.Connection) {
	if s.dev == nil {
		return
	}
	if err := s.dev.Read(); err != nil {
		if err == aht20.ErrTimeout {
			println("Warn: sensors: poll", errcode.Timeout.Error())
		} else {
			println("Warn: sensors: poll failed:", err.Error())
		}
		return
	}
	r := readingFrom(s.dev.LastSample())
	conn.Publish(conn.NewMessage(topicData, r, true))
	if s.beacon {
		// Retained so a transmit path attaching later starts from the
		// latest frame.
		s.seq++
		f := radio.EncodeBeacon(s.nodeID, s.seq, r)
		conn.Publish(conn.NewMessage(topicBeacon, f.Bytes(), true))
	}
}

// applyConfig folds a config/sensors payload into the service and
// reports whether the poll interval moved.
func (s *Service) applyConfig(payload any) bool {
	m, ok := payload.(map[string]any)
	if !ok {
		println("Warn: sensors: unusable config payload")
		return false
	}
	changed := false
	if iv, ok := secondsFrom(m["poll_interval"]); ok && iv != s.pollIv {
		s.pollIv = iv
		changed = true
		println("Info: sensors poll interval set to", int64(iv/time.Millisecond), "ms")
	}
	if b, ok := m["beacon"].(bool); ok {
		s.beacon = b
	}
	return changed
}

// secondsFrom converts a config number in seconds to a duration.
// JSON decoders hand over float64 or int depending on the source.
func secondsFrom(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case float64:
		if n <= 0 {
			return 0, false
		}
		return time.Duration(n * float64(time.Second)), true
	case int:
		if n <= 0 {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

// readingFrom narrows a raw sample to the wire type. Clamping keeps a
// misread part from wrapping the int16 fields.
func readingFrom(sm aht20.Sample) types.Reading {
	return types.Reading{
		Sensor: "aht20",
		DeciC:  int16(mathx.Clamp(sm.DeciCelsius(), -32768, 32767)),
		DeciRH: int16(mathx.Clamp(sm.DeciRelHumidity(), 0, 32767)),
		TSMs:   timex.NowMs(),
	}
}

// Start launches the sensor loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
