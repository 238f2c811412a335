// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command gateway wires the configuration model, the three RTU master
// pollers, the shared snapshot store, the TCP slave engine, the slave
// projector, and the MQTT publisher into one running process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/modbusedge/gateway/internal/config"
	"github.com/modbusedge/gateway/internal/kvstore"
	"github.com/modbusedge/gateway/internal/master"
	"github.com/modbusedge/gateway/internal/mqttpublish"
	"github.com/modbusedge/gateway/internal/projector"
	"github.com/modbusedge/gateway/internal/serialbus"
	"github.com/modbusedge/gateway/internal/snapshot"
	"github.com/modbusedge/gateway/internal/tcpslave"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)
	slog.Info("starting modbus gateway")

	store, err := newKVStore(cfg.Persistence)
	if err != nil {
		slog.Error("failed to open persistence store", "error", err)
		os.Exit(1)
	}
	applyPersistedBusParams(store, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, err := build(cfg, store)
	if err != nil {
		slog.Error("failed to build gateway", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	g.start(ctx, &wg)

	if w, err := config.NewWatcher(*configFile, func(newCfg *config.Config) {
		slog.Info("config reload observed; restart the process to apply bus/TCP/MQTT topology changes")
		_ = newCfg
	}); err == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	} else if *configFile != "" {
		slog.Warn("config hot-reload watcher not started", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	cancel()
	wg.Wait()
	slog.Info("goodbye")
}

// gateway holds every long-running component built from one Config.
type gateway struct {
	pollers   []*master.Poller
	projector *projector.Projector
	tcpServer *tcpslave.Server
	publisher *mqttpublish.Publisher
}

func build(cfg *config.Config, store kvstore.Store) (*gateway, error) {
	allGroups := flattenGroups(cfg.Buses)
	snap := snapshot.NewStore(len(allGroups))

	var pollers []*master.Poller
	rowOffset := 0
	for i := range cfg.Buses {
		bus := cfg.Buses[i]
		if len(bus.Groups) == 0 {
			continue
		}
		ch, err := serialbus.Open(serialbus.Params{
			Device:             bus.Device,
			BaudRate:           bus.BaudRate,
			DataBits:           bus.DataBits,
			StopBits:           bus.StopBits,
			Parity:             bus.Parity,
			RS485:              bus.RS485,
			DelayRtsBeforeSend: bus.DelayRtsBeforeSend,
			DelayRtsAfterSend:  bus.DelayRtsAfterSend,
			RtsHighDuringSend:  bus.RtsHighDuringSend,
			RtsHighAfterSend:   bus.RtsHighAfterSend,
			RxDuringTx:         bus.RxDuringTx,
		})
		if err != nil {
			slog.Error("failed to open serial bus, its groups will not be polled", "uart_port", i+1, "device", bus.Device, "error", err)
			rowOffset += len(bus.Groups)
			continue
		}
		interval := time.Duration(bus.PollIntervalMs) * time.Millisecond
		p := master.NewPoller(fmt.Sprintf("uart%d", i+1), ch, bus.Groups, rowOffset, interval, snap)
		pollers = append(pollers, p)
		rowOffset += len(bus.Groups)
	}

	arenas := tcpslave.NewArenas(int(cfg.TCP.RegSizes.Bits), int(cfg.TCP.RegSizes.InputBits), int(cfg.TCP.RegSizes.Registers), int(cfg.TCP.RegSizes.InputRegisters))
	dispatcher := tcpslave.NewDispatcher(arenas, cfg.TCP.SlaveAddress)
	var tcpServer *tcpslave.Server
	if cfg.TCP.Enabled {
		tcpServer = tcpslave.NewServer(cfg.TCP.ListenAddr, dispatcher)
	}

	proj := projector.New(cfg.TCP.Maps, snap, arenas)
	publisher := mqttpublish.New(cfg.MQTT, allGroups, snap)

	return &gateway{pollers: pollers, projector: proj, tcpServer: tcpServer, publisher: publisher}, nil
}

func (g *gateway) start(ctx context.Context, wg *sync.WaitGroup) {
	for _, p := range g.pollers {
		wg.Add(1)
		go func(p *master.Poller) {
			defer wg.Done()
			p.Run(ctx)
		}(p)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.projector.Run(ctx)
	}()

	if g.tcpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.tcpServer.Start(ctx); err != nil {
				slog.Error("tcp slave server exited", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.publisher.Run(ctx)
	}()
}

// flattenGroups concatenates every bus's groups in bus order, matching
// the global snapshot-row indexing build() assigns via rowOffset.
func flattenGroups(buses [config.NumBuses]config.Bus) []config.PollGroup {
	var all []config.PollGroup
	for _, b := range buses {
		all = append(all, b.Groups...)
	}
	return all
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Printf("failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
