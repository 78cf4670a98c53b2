// config/config_test.go
package config

import (
	"context"
	"testing"
	"time"

	"swarmnode-go/bus"
)

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	// Override lookup for this test.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(node string) ([]byte, bool) {
		if node != "swarm-pico" {
			return nil, false
		}
		return []byte(`{
			"mode": "dev",
			"debug": true,
			"region": {"code": "eu"}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	// Arrange bus and service.
	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService()

	// Start publisher with node name in context.
	ctx := context.WithValue(context.Background(), CtxNodeKey, "swarm-pico")
	svc.Start(ctx, conn)

	// Subscribe; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.Topic{configPrefix, "#"})

	type gotMsg struct {
		key string
		val any
	}

	wantCount := 3 // mode, debug, region
	got := map[string]gotMsg{}

	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < wantCount && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if len(m.Topic) < 2 {
				t.Fatalf("unexpected topic length: %#v", m.Topic)
			}
			// Assert tokens to string
			prefix, ok := m.Topic[0].(string)
			if !ok {
				t.Fatalf("topic[0] type %T, want string", m.Topic[0])
			}
			if prefix != configPrefix {
				t.Fatalf("unexpected prefix: %q", prefix)
			}
			keyTok := m.Topic[1]
			key, ok := keyTok.(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", keyTok)
			}
			got[key] = gotMsg{key: key, val: m.Payload}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d retained messages, got %d (%v)", wantCount, len(got), got)
	}

	// Assert payloads without reflect.
	// mode
	if v, ok := got["mode"]; !ok {
		t.Fatal("missing 'mode' message")
	} else if s, ok := v.val.(string); !ok || s != "dev" {
		t.Fatalf("mode payload = %#v, want \"dev\"", v.val)
	}
	// debug
	if v, ok := got["debug"]; !ok {
		t.Fatal("missing 'debug' message")
	} else if bval, ok := v.val.(bool); !ok || bval != true {
		t.Fatalf("debug payload = %#v, want true", v.val)
	}
	// region
	if v, ok := got["region"]; !ok {
		t.Fatal("missing 'region' message")
	} else if m, ok := v.val.(map[string]any); !ok {
		t.Fatalf("region payload type = %T, want map[string]any", v.val)
	} else if code, ok := m["code"].(string); !ok || code != "eu" {
		t.Fatalf("region.code = %#v, want \"eu\"", m["code"])
	}
}

func TestConfig_PublishMap_RetainedPerKey(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("test-publishmap")

	PublishMap(conn, map[string]any{
		"heartbeat": map[string]any{"interval": 0.5},
		"sensors":   map[string]any{"poll_interval": 2},
	})

	// Later subscriber still sees both keys via retention.
	sub := conn.Subscribe(bus.Topic{configPrefix, "heartbeat"})
	select {
	case m := <-sub.Channel():
		hb, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("payload type %T", m.Payload)
		}
		if iv, ok := hb["interval"].(float64); !ok || iv != 0.5 {
			t.Fatalf("interval = %#v, want 0.5", hb["interval"])
		}
		if !m.Retained {
			t.Fatal("config message not retained")
		}
	case <-time.After(time.Second):
		t.Fatal("retained config never delivered")
	}
}

func TestConfig_PublishConfig_MissingNode(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-node")
	svc := NewConfigService()

	// No node name in context
	if err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing node name, got nil")
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	// Override lookup to simulate absence.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(node string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxNodeKey, "unknown-node")
	if err := svc.publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}

func TestConfig_EmbeddedProfilesDecode(t *testing.T) {
	for node := range embeddedConfigs {
		b := bus.NewBus(8)
		conn := b.NewConnection("test-embedded")
		svc := NewConfigService()

		ctx := context.WithValue(context.Background(), CtxNodeKey, node)
		if err := svc.publishConfig(ctx, conn); err != nil {
			t.Fatalf("profile %q: %v", node, err)
		}

		sub := conn.Subscribe(bus.Topic{configPrefix, "heartbeat"})
		select {
		case m := <-sub.Channel():
			hb, ok := m.Payload.(map[string]any)
			if !ok {
				t.Fatalf("profile %q: heartbeat payload type %T", node, m.Payload)
			}
			if _, ok := hb["interval"]; !ok {
				t.Fatalf("profile %q: heartbeat config has no interval", node)
			}
		case <-time.After(time.Second):
			t.Fatalf("profile %q: heartbeat config never published", node)
		}
	}
}
