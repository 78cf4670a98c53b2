// nodesim runs the node firmware loop as a host process over the
// simulated board. The console rides stdin/stdout; retention state and
// the bootloader handoff record live under a state directory, so a
// wrapper script can restart the process on the soft-reset exit code
// and watch staged boot tasks carry across lives.
//
// Exit codes: 0 host closed the console, 42 soft reset requested,
// 43 bootloader handoff performed.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"swarmnode-go/backup"
	"swarmnode-go/boot"
	"swarmnode-go/bus"
	"swarmnode-go/commands"
	"swarmnode-go/device"
	"swarmnode-go/services/config"
	"swarmnode-go/services/heartbeat"
	"swarmnode-go/services/sensors"
	"swarmnode-go/services/terminal"
)

// simConfig is the optional YAML profile. Zero fields fall back to the
// compiled-in host profile.
type simConfig struct {
	Node struct {
		Name string `yaml:"name"`
		ID   uint16 `yaml:"id"`
	} `yaml:"node"`
	StateDir string         `yaml:"state_dir"`
	Config   map[string]any `yaml:"config"`
	Sensor   *struct {
		DeciC  int32 `yaml:"deci_c"`
		DeciRH int32 `yaml:"deci_rh"`
	} `yaml:"sensor"`
}

func loadConfig(path string) (simConfig, error) {
	var cfg simConfig
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func fatalf(format string, a ...any) {
	log.Printf(format, a...)
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("nodesim: ")

	cfgPath := flag.String("config", "", "YAML profile (node name/id, config map, sensor values)")
	stateDir := flag.String("state", "", "state directory (default from profile or ./swarmnode-state)")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fatalf("config: %v", err)
	}

	name := cfg.Node.Name
	if name == "" {
		name = device.Selected.Node
	}
	nodeID := cfg.Node.ID
	if nodeID == 0 {
		nodeID = device.Selected.NodeID
	}
	dir := *stateDir
	if dir == "" {
		dir = cfg.StateDir
	}
	if dir == "" {
		dir = "swarmnode-state"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fatalf("state dir: %v", err)
	}

	bank, err := backup.OpenFileBank(filepath.Join(dir, "retention.bin"), 8)
	if err != nil {
		fatalf("retention bank: %v", err)
	}

	board := device.NewSimBoard(bank)
	board.HandoffPath = filepath.Join(dir, "handoff.bin")
	board.ExitFunc = os.Exit
	if err := board.LoadROM(filepath.Join(dir, "rom.bin")); err != nil {
		fatalf("rom: %v", err)
	}
	if cfg.Sensor != nil {
		board.SetSensorValues(cfg.Sensor.DeciC, cfg.Sensor.DeciRH)
	}
	tr := device.NewRingTransport()
	board.SetTransport(tr)

	mgr := device.NewManager(board)

	// Same ordering as the firmware: claim retention, count the boot,
	// dispatch the staged task before anything else comes up.
	regs, err := mgr.ClaimRetention("boot")
	if err != nil {
		panic(err)
	}
	regs.WriteRegister(backup.SlotBootCounter, regs.ReadRegister(backup.SlotBootCounter)+1)
	log.Printf("%s (id %d) boot %d, state %s",
		name, nodeID, regs.ReadRegister(backup.SlotBootCounter), dir)

	tasks := backup.NewDomain(regs).BootTask()
	boot.Execute(tasks.ReadAndClear(), boot.Hooks{EnterDFU: mgr.EnterBootloader})

	ctx := context.WithValue(context.Background(), config.CtxNodeKey, name)

	b := bus.NewBus(16)
	if cfg.Config != nil {
		config.PublishMap(b.NewConnection("config"), cfg.Config)
	} else {
		config.NewConfigService().Start(ctx, b.NewConnection("config"))
	}

	if led, err := mgr.ClaimIndicator("heartbeat"); err != nil {
		log.Printf("indicator claim: %v", err)
	} else if err := heartbeat.New(led).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		log.Printf("heartbeat: %v", err)
	}

	i2c, err := mgr.ClaimSensorBus("sensors")
	if err != nil {
		log.Printf("sensor bus claim: %v", err)
	}
	if err := sensors.New(i2c, nodeID).Start(ctx, b.NewConnection("sensors")); err != nil {
		log.Printf("sensors: %v", err)
	}

	go pumpStdin(tr)
	go pumpStdout(tr)

	console, err := mgr.ClaimSerial(ctx, "terminal")
	if err != nil {
		fatalf("serial claim: %v", err)
	}

	exec := commands.NewExecutor(mgr, tasks, b.NewConnection("commands"), name)
	exec.SetLink(console)
	err = terminal.New(console, exec, "").Run(ctx)

	drainConsole(tr)
	if err != nil && !errors.Is(err, io.EOF) {
		log.Printf("terminal: %v", err)
		os.Exit(1)
	}
	os.Exit(device.ExitOK)
}

// pumpStdin feeds the host's bytes into the device end of the console.
// Stdin reads cannot be cancelled, so EOF is the only way out; closing
// the ring surfaces it to the terminal as a closed link.
func pumpStdin(tr *device.RingTransport) {
	buf := make([]byte, 256)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if _, werr := tr.In.WriteAllContext(context.Background(), buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			tr.In.Close()
			return
		}
	}
}

// pumpStdout drains the device's console output to the host.
func pumpStdout(tr *device.RingTransport) {
	buf := make([]byte, 1024)
	for {
		n, err := tr.Out.ReadSomeContext(context.Background(), buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// drainConsole gives the stdout pump a moment to catch up so the last
// response is not cut off by the exit.
func drainConsole(tr *device.RingTransport) {
	deadline := time.Now().Add(500 * time.Millisecond)
	for tr.Out.Available() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}
