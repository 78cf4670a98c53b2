// Package config publishes the node's configuration as retained bus
// messages, one per top-level key. Services pick their slice up on
// subscribe and react to later republishes.
package config

import (
	"context"
	"errors"

	"swarmnode-go/bus"

	"github.com/andreyvit/tinyjson"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxNodeKey   = "node" // context key carrying the node profile name
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(node string) ([]byte, bool) {
	b, ok := embeddedConfigs[node]
	return b, ok
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// PublishMap publishes one retained config/<key> message per top-level
// key of m. The simulator feeds it a decoded YAML map directly; the
// embedded path below goes through it too.
func PublishMap(conn *bus.Connection, m map[string]any) {
	for k, v := range m {
		conn.Publish(&bus.Message{
			Topic:    bus.T(configPrefix, k),
			Payload:  v,
			Retained: true,
		})
	}
}

// publishConfig decodes the node's embedded JSON and publishes it as
// retained messages.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	node, _ := ctx.Value(CtxNodeKey).(string)
	if node == "" {
		return errors.New("missing node name in context")
	}

	raw, ok := EmbeddedConfigLookup(node)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for node: " + node)
	}

	r := tinyjson.Raw(raw)
	val := r.Value() // should be a map[string]any
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return errors.New("embedded config is not a JSON object")
	}

	PublishMap(conn, m)
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("Warn: config:", err.Error())
		}
	}()
}
