package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: node profile name (same value placed in ctx under CtxNodeKey)
// Val: raw JSON bytes for that node
//
// Intervals are in seconds.
// -----------------------------------------------------------------------------

const cfgSwarmPico = `{
  "node": {
      "name": "swarm-pico"
  },
  "heartbeat": {
      "interval": 1
  },
  "sensors": {
      "poll_interval": 5,
      "beacon": true
  },
  "serial": {
      "console": "usb"
  }
}`

var embeddedConfigs = map[string][]byte{
	"swarm-pico": []byte(cfgSwarmPico),
	"swarm-sim":  []byte(cfgSwarmPico),
}
