//go:build rp2040 || rp2350

package main

import (
	"context"

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

func main() {
	mgr := device.NewManager(device.NewBoard())

	// Boot-task dispatch comes first, before services or the console.
	// A staged dfu_reboot hands off to the ROM right here.
	regs, err := mgr.ClaimRetention("boot")
	if err != nil {
		panic(err)
	}
	regs.WriteRegister(backup.SlotBootCounter, regs.ReadRegister(backup.SlotBootCounter)+1)
	tasks := backup.NewDomain(regs).BootTask()
	boot.Execute(tasks.ReadAndClear(), boot.Hooks{EnterDFU: mgr.EnterBootloader})

	ctx := context.WithValue(context.Background(), config.CtxNodeKey, device.Selected.Node)

	b := bus.NewBus(8)
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	if led, err := mgr.ClaimIndicator("heartbeat"); err != nil {
		println("Warn: [main] indicator claim:", err.Error())
	} else if err := heartbeat.New(led).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("Warn: [main] heartbeat:", err.Error())
	}

	i2c, err := mgr.ClaimSensorBus("sensors")
	if err != nil {
		println("Warn: [main] sensor bus claim:", err.Error())
	}
	if err := sensors.New(i2c, device.Selected.NodeID).Start(ctx, b.NewConnection("sensors")); err != nil {
		println("Warn: [main] sensors:", err.Error())
	}

	// The console claim parks until a host terminal attaches. Services
	// above keep running while we wait.
	println("[main] waiting for console host")
	tr, err := mgr.ClaimSerial(ctx, "terminal")
	if err != nil {
		println("Warn: [main] serial claim:", err.Error())
		select {}
	}

	exec := commands.NewExecutor(mgr, tasks, b.NewConnection("commands"), device.Selected.Node)
	exec.SetLink(tr)
	if err := terminal.New(tr, exec, "").Run(ctx); err != nil {
		println("Warn: [main] terminal:", err.Error())
	}
	select {}
}
