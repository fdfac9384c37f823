/*
NAME
  sqfbridged - real-time audio bridge daemon.

DESCRIPTION
  sqfbridged launches the upstream decoder subprocess, reads its
  format-tagged PCM/DSD byte stream from a pipe, and drives a
  downstream wire-protocol sink at a strict periodic clock, converting
  and rate-pacing audio through a lock-free ring buffer in between.
  This binary owns only the outer wiring: flags,
  logging, process supervision, and signal handling; the pipeline
  itself lives in producer, ring, convert, pipeio, sink and logring.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sqfbridged is the audio bridge daemon's entry point.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/sqfbridge/audioformat"
	"github.com/ausocean/sqfbridge/bridge/config"
	"github.com/ausocean/sqfbridge/bridge/statsink"
	"github.com/ausocean/sqfbridge/logring"
	"github.com/ausocean/sqfbridge/pipeio"
	"github.com/ausocean/sqfbridge/producer"
	"github.com/ausocean/sqfbridge/ring"
	"github.com/ausocean/sqfbridge/sink"
	"github.com/ausocean/sqfbridge/sink/priority"
	"github.com/ausocean/utils/logging"
)

const version = "v0.1.0"

// Logging configuration, named and defaulted the way cmd/rv and
// cmd/looper do.
const (
	defaultLogPath = "/var/log/sqfbridge/sqfbridge.log"
	logMaxSize     = 500 // MB
	logMaxBackup   = 10
	logMaxAge      = 28 // days
	watchdogPeriod = 10 * time.Second
)

func main() {
	showVersion := flag.Bool("version", false, "show version")
	configPath := flag.String("config", "", "path to a hot-reloadable key=value config file")
	decoderPath := flag.String("decoder", "", "path to the upstream decoder executable")
	decoderArgs := flag.String("decoder-args", "", "comma-separated arguments passed to the decoder")
	logLevel := flag.Int("log-level", int(logging.Info), "log verbosity (0=Debug .. 4=Fatal)")
	logPath := flag.String("log-path", defaultLogPath, "file the log is rolled to")
	targetName := flag.String("target", "", "pin to one discovered target by name; empty selects the first")
	mtuFallback := flag.Uint("mtu-fallback", 0, "MTU to assume if path MTU measurement fails; 0 keeps the config default")
	ringCapacity := flag.Uint("ring-capacity", 0, "ring buffer capacity in bytes; 0 keeps the config default")
	priorityFlag := flag.Int("priority", 0, "SCHED_FIFO priority requested once at startup for the main goroutine's OS thread; 0 keeps the config default")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	fileLog := &lumberjack.Logger{
		Filename:   *logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(int8(*logLevel), io.MultiWriter(fileLog, os.Stderr), true)
	log.Info("starting sqfbridged", "version", version)

	cfg := config.Default()
	cfg.Logger = log
	cfg.ConfigPath = *configPath
	if *decoderPath != "" {
		cfg.DecoderPath = *decoderPath
	}
	if *decoderArgs != "" {
		cfg.DecoderArgs = strings.Split(*decoderArgs, ",")
	}
	if *targetName != "" {
		cfg.Sink.TargetName = *targetName
	}
	if *mtuFallback != 0 {
		cfg.Sink.MTUFallback = uint32(*mtuFallback)
	}
	if *ringCapacity != 0 {
		cfg.RingCapacityBytes = *ringCapacity
	}
	if *priorityFlag != 0 {
		cfg.Priority = *priorityFlag
	}

	if err := cfg.Validate(); err != nil {
		log.Warning("sqfbridged: config validation defaulted fields", "error", err)
	}

	watcher, err := config.WatchFile(&cfg)
	if err != nil {
		log.Fatal("sqfbridged: could not watch config file", "error", err)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	if cfg.DecoderPath == "" {
		log.Fatal("sqfbridged: no decoder path configured")
	}

	if cfg.Priority > 0 {
		if err := priority.RaiseRealtime(cfg.Priority); err != nil {
			log.Warning("sqfbridged: could not raise scheduling priority, continuing at default", "error", err)
		}
	}

	logRing := logring.New(logring.DefaultCapacity)
	drainStop := make(chan struct{})
	go logring.Drain(logRing, log, drainStop)
	defer close(drainStop)

	stats := statsink.New(log)
	defer stats.Close()

	transport := newLoopbackTransport(log)
	ctrl := sink.New(transport, log, cfg.Sink)
	ctrl.SetRing(ring.New(uint32(cfg.RingCapacityBytes), 0))
	ctrl.LogRing = logRing
	ctrl.OnUnderrun = stats.RecordUnderrun
	ctrl.OnFramesDelivered = stats.RecordFramesDelivered
	ctrl.OnTransition = stats.RecordFormatChange

	if err := ctrl.Enable(); err != nil {
		log.Fatal("sqfbridged: could not enable sink controller", "error", err)
	}
	defer ctrl.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	runErr := make(chan error, 1)
	cmd, pipe, err := startDecoder(cfg, log)
	if err != nil {
		log.Fatal("sqfbridged: could not start decoder", "error", err)
	}
	loop := producer.New(pipe, ctrl, log)
	go func() { runErr <- loop.Run() }()

	ok, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warning("sqfbridged: systemd notify failed", "error", err)
	} else if ok {
		log.Debug("sqfbridged: systemd watchdog engaged")
		go watchdog(log)
	}

	select {
	case sig := <-sigCh:
		log.Info("sqfbridged: received signal, shutting down", "signal", sig.String())
		ctrl.Disable()
	case err := <-runErr:
		if err != nil && err != io.EOF {
			log.Error("sqfbridged: producer loop exited with error", "error", err)
		} else {
			log.Info("sqfbridged: decoder pipe closed, shutting down")
		}
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	_ = cmd.Wait()
	log.Info("sqfbridged: shutdown complete")
}

// startDecoder launches the configured decoder subprocess and returns
// a PipeReader over its standard output, the byte stream producer.Loop
// demultiplexes (the decoder is "launched as a subprocess, emitting the
// byte stream on its standard output").
func startDecoder(cfg config.Config, log logging.Logger) (*exec.Cmd, *pipeio.PipeReader, error) {
	cmd := exec.Command(cfg.DecoderPath, cfg.DecoderArgs...)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	log.Info("sqfbridged: decoder started", "path", cfg.DecoderPath, "args", cfg.DecoderArgs)

	return cmd, pipeio.New(stdout, audioformat.Magic), nil
}

// watchdog periodically pings systemd's watchdog so a hung bridge gets
// restarted by the unit's supervision, matching cmd/looper's systemd
// integration expectations (SPEC_FULL.md Part B, CLI / process wiring).
func watchdog(log logging.Logger) {
	ticker := time.NewTicker(watchdogPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
			log.Warning("sqfbridged: watchdog notify failed", "error", err)
		}
	}
}
