/*
NAME
  config.go

DESCRIPTION
  config.go defines Config, the outer operator-facing configuration for
  the bridge process, nesting sink.Config plus the decoder
  subprocess and logging knobs that sit above it.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config provides Config, the bridge's runtime configuration,
// with on-disk hot-reload via fsnotify.
package config

import (
	"github.com/ausocean/sqfbridge/sink"
	"github.com/ausocean/utils/logging"
)

// Config carries every operator-tunable parameter of the bridge
// process. A new Config must be populated and Validated before use.
type Config struct {
	// Logger receives diagnostic messages from every package. Must be
	// set before Validate is called.
	Logger logging.Logger

	// LogLevel is the bridge logging verbosity, using the same enums as
	// github.com/ausocean/utils/logging (Debug, Info, Warning, Error).
	LogLevel int8

	// LogPath is the file lumberjack rolls the log to. An empty value
	// does not turn file logging off, and cmd/sqfbridged takes its log
	// file from the -log-path flag rather than from this field.
	LogPath string

	// DecoderPath is the executable path of the upstream decoder
	// subprocess whose stdout is read as the audio pipe.
	DecoderPath string

	// DecoderArgs are the arguments passed to DecoderPath.
	DecoderArgs []string

	// RingCapacityBytes sizes the ring buffer between producer and
	// consumer.
	RingCapacityBytes uint

	// Priority is the SCHED_FIFO priority cmd/sqfbridged requests once
	// at startup, for the OS thread its main goroutine runs on; the
	// producer and consumer goroutines are not locked to that thread.
	// 0 disables the attempt.
	Priority int

	// ConfigPath, if non-empty, is watched for changes and re-applied
	// via Update on every write (the hot-reload of SPEC_FULL.md Part D).
	ConfigPath string

	// Sink nests the wire-protocol tunables.
	Sink sink.Config
}

// Validate defaults any unset or invalid field, logging each one via
// LogInvalidField, mirroring revid/config.Config.Validate.
func (c *Config) Validate() error {
	for _, v := range variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update applies a map of variable name to string value, parsing and
// setting the corresponding Config field, mirroring
// revid/config.Config.Update. Unknown keys are ignored.
func (c *Config) Update(vars map[string]string) {
	for _, variable := range variables {
		if v, ok := vars[variable.Name]; ok && variable.Update != nil {
			variable.Update(c, v)
		}
	}
}

// LogInvalidField logs that name was bad or unset and is being
// defaulted to def.
func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}

// Default returns a Config populated with the bridge's defaults, with
// Logger left nil; callers must set it before Validate.
func Default() Config {
	return Config{
		LogLevel:          logging.Info,
		RingCapacityBytes: 1 << 20,
		Priority:          50,
		Sink:              sink.DefaultConfig(),
	}
}
