// Package commands parses and executes the terminal command set. The
// parser turns one input line into a Command; the Executor runs it and
// renders the response text. Neither side touches the transport, that
// stays with the terminal service.
package commands

import (
	"strings"

	"swarmnode-go/errcode"
	"swarmnode-go/x/strconvx"

	"github.com/google/shlex"
)

// Kind identifies a parsed command.
type Kind uint8

const (
	KindNone Kind = iota // blank line
	KindHelp
	KindPing
	KindStatus
	KindVersion
	KindSensors
	KindSensor
	KindDebug
	KindReg
	KindReboot
	KindDFU
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindHelp:
		return "help"
	case KindPing:
		return "ping"
	case KindStatus:
		return "status"
	case KindVersion:
		return "version"
	case KindSensors:
		return "sensors"
	case KindSensor:
		return "sensor"
	case KindDebug:
		return "debug"
	case KindReg:
		return "reg"
	case KindReboot:
		return "reboot"
	case KindDFU:
		return "dfu"
	default:
		return "unknown"
	}
}

// Command is one parsed terminal command.
type Command struct {
	Kind   Kind
	Sensor string // sensor kind for KindSensor
	Index  int    // register index for KindReg
	Raw    string // offending word, kept for unknown-command replies
}

// Alias table. Every name the old firmware surface accepted still
// resolves, lower-cased.
var commandNames = map[string]Kind{
	"help":             KindHelp,
	"?":                KindHelp,
	"ping":             KindPing,
	"status":           KindStatus,
	"version":          KindVersion,
	"sensors":          KindSensors,
	"read_sensors":     KindSensors,
	"temp":             KindSensor,
	"temperature":      KindSensor,
	"read_temperature": KindSensor,
	"humidity":         KindSensor,
	"read_humidity":    KindSensor,
	"light":            KindSensor,
	"read_light":       KindSensor,
	"pressure":         KindSensor,
	"read_pressure":    KindSensor,
	"debug":            KindDebug,
	"debug_info":       KindDebug,
	"reg":              KindReg,
	"reboot":           KindReboot,
	"reboot_cpu":       KindReboot,
	"dfu":              KindDFU,
	"reboot_dfu":       KindDFU,
	"reboot_cpu_dfu":   KindDFU,
}

var sensorKinds = map[string]string{
	"temp":             "temperature",
	"temperature":      "temperature",
	"read_temperature": "temperature",
	"humidity":         "humidity",
	"read_humidity":    "humidity",
	"light":            "light",
	"read_light":       "light",
	"pressure":         "pressure",
	"read_pressure":    "pressure",
}

// Parse tokenizes one input line and resolves it against the alias
// table. Unknown names are not an error, they come back as KindUnknown
// with the word preserved so the reply can echo it. Errors are reserved
// for lines the grammar rejects: broken quoting and bad arguments.
func Parse(line string) (Command, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return Command{}, &errcode.E{C: errcode.InvalidParams, Op: "parse", Msg: "bad quoting in command", Err: err}
	}
	if len(fields) == 0 {
		return Command{Kind: KindNone}, nil
	}

	name := strings.ToLower(fields[0])
	kind, ok := commandNames[name]
	if !ok {
		return Command{Kind: KindUnknown, Raw: fields[0]}, nil
	}

	switch kind {
	case KindReg:
		if len(fields) != 2 {
			return Command{}, &errcode.E{C: errcode.InvalidParams, Op: "reg", Msg: "usage: reg <index>"}
		}
		idx, err := strconvx.Atoi(fields[1])
		if err != nil {
			return Command{}, &errcode.E{C: errcode.InvalidParams, Op: "reg", Msg: "usage: reg <index>", Err: err}
		}
		return Command{Kind: KindReg, Index: idx}, nil
	case KindSensor:
		if len(fields) > 1 {
			return Command{}, &errcode.E{C: errcode.InvalidParams, Op: name, Msg: name + " takes no arguments"}
		}
		return Command{Kind: KindSensor, Sensor: sensorKinds[name]}, nil
	default:
		if len(fields) > 1 {
			return Command{}, &errcode.E{C: errcode.InvalidParams, Op: name, Msg: name + " takes no arguments"}
		}
		return Command{Kind: kind}, nil
	}
}
