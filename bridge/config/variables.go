/*
NAME
  variables.go

DESCRIPTION
  variables.go lists the Config fields an operator may set by name,
  each with a string type tag, an Update closure, and an optional
  Validate closure, mirroring revid/config/variables.go.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"strconv"
	"strings"

	"github.com/ausocean/utils/logging"
)

// Config map keys.
const (
	KeyLogLevel           = "LogLevel"
	KeyLogPath            = "LogPath"
	KeyDecoderPath        = "DecoderPath"
	KeyDecoderArgs        = "DecoderArgs"
	KeyRingCapacityBytes  = "RingCapacityBytes"
	KeyPriority           = "Priority"
	KeyConfigPath         = "ConfigPath"
	KeyMTU                = "MTU"
	KeyMTUFallback        = "MTUFallback"
	KeyDACStabilizationMs = "DACStabilizationMs"
	KeyOnlineWaitMs       = "OnlineWaitMs"
	KeyFormatSwitchDelay  = "FormatSwitchDelayMs"
	KeyHighRatePCMHz      = "HighRatePCMHz"
	KeyHighRateDSDHz      = "HighRateDSDHz"
	KeyTargetName         = "TargetName"
)

// Config map parameter types.
const (
	typeString = "string"
	typeInt    = "int"
	typeUint   = "uint"
)

// Default variable values, used by Validate when a field is unset or
// invalid.
const (
	defaultRingCapacityBytes = 1 << 20
	defaultPriority          = 50
)

// variables describes every Config field an operator may set by name,
// analogous to revid/config.Variables.
var variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name: KeyLogLevel,
		Type: "enum:debug,info,warning,error",
		Update: func(c *Config, v string) {
			switch strings.ToLower(v) {
			case "debug":
				c.LogLevel = logging.Debug
			case "info":
				c.LogLevel = logging.Info
			case "warning":
				c.LogLevel = logging.Warning
			case "error":
				c.LogLevel = logging.Error
			default:
				c.Logger.Warning("invalid LogLevel param", "value", v)
			}
		},
	},
	{
		Name:   KeyLogPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.LogPath = v },
	},
	{
		Name:   KeyDecoderPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.DecoderPath = v },
		Validate: func(c *Config) {
			if c.DecoderPath == "" {
				c.Logger.Warning("DecoderPath unset; producer has nothing to read from")
			}
		},
	},
	{
		Name: KeyDecoderArgs,
		Type: typeString,
		Update: func(c *Config, v string) {
			if v == "" {
				c.DecoderArgs = nil
				return
			}
			c.DecoderArgs = strings.Split(v, ",")
		},
	},
	{
		Name:   KeyRingCapacityBytes,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.RingCapacityBytes = parseUint(KeyRingCapacityBytes, v, c) },
		Validate: func(c *Config) {
			if c.RingCapacityBytes == 0 {
				c.LogInvalidField(KeyRingCapacityBytes, defaultRingCapacityBytes)
				c.RingCapacityBytes = defaultRingCapacityBytes
			}
		},
	},
	{
		Name:   KeyPriority,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.Priority = parseInt(KeyPriority, v, c) },
		Validate: func(c *Config) {
			if c.Priority < 0 || c.Priority > 99 {
				c.LogInvalidField(KeyPriority, defaultPriority)
				c.Priority = defaultPriority
			}
		},
	},
	{
		Name:   KeyConfigPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.ConfigPath = v },
	},
	{
		Name:   KeyMTU,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.Sink.MTU = uint32(parseUint(KeyMTU, v, c)) },
	},
	{
		Name:   KeyMTUFallback,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.Sink.MTUFallback = uint32(parseUint(KeyMTUFallback, v, c)) },
	},
	{
		Name:   KeyDACStabilizationMs,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.Sink.DACStabilizationMs = parseInt(KeyDACStabilizationMs, v, c) },
	},
	{
		Name:   KeyOnlineWaitMs,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.Sink.OnlineWaitMs = parseInt(KeyOnlineWaitMs, v, c) },
	},
	{
		Name:   KeyFormatSwitchDelay,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.Sink.FormatSwitchDelayMs = parseInt(KeyFormatSwitchDelay, v, c) },
	},
	{
		Name:   KeyHighRatePCMHz,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.Sink.HighRatePCMHz = uint32(parseUint(KeyHighRatePCMHz, v, c)) },
	},
	{
		Name:   KeyHighRateDSDHz,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.Sink.HighRateDSDHz = uint32(parseUint(KeyHighRateDSDHz, v, c)) },
	},
	{
		Name:   KeyTargetName,
		Type:   typeString,
		Update: func(c *Config, v string) { c.Sink.TargetName = v },
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning("expected unsigned int for param "+n, "value", v)
	}
	return uint(_v)
}

func parseInt(n, v string, c *Config) int {
	_v, err := strconv.Atoi(v)
	if err != nil {
		c.Logger.Warning("expected integer for param "+n, "value", v)
	}
	return _v
}
