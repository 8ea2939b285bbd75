// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/objectlens/pkg/logging"
	"github.com/AleutianAI/objectlens/services/lens/builder"
	"github.com/AleutianAI/objectlens/services/lens/identity"
	"github.com/AleutianAI/objectlens/services/lens/render"
	"github.com/AleutianAI/objectlens/services/lens/storage/badger"
	"github.com/AleutianAI/objectlens/services/lens/telemetry"
)

// Config is the objectlens configuration file.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Debugger  DebuggerConfig       `yaml:"debugger"`
	Session   SessionConfig        `yaml:"session"`
	Builder   BuilderConfig        `yaml:"builder"`
	Identity  identity.TypeProfile `yaml:"identity"`
	Style     render.Style         `yaml:"style"`
	Recording RecordingConfig      `yaml:"recording"`
	Logging   LoggingConfig        `yaml:"logging"`
	Telemetry telemetry.Config     `yaml:"telemetry"`
}

// ServerConfig configures the panel server.
type ServerConfig struct {
	Address        string   `yaml:"address" validate:"required"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" validate:"dive,url"`
	Debug          bool     `yaml:"debug"`
}

// DebuggerConfig configures the debug adapter connection.
type DebuggerConfig struct {
	// Address is the adapter's host:port.
	Address string `yaml:"address" validate:"required,hostname_port"`

	// AdapterID is sent in the initialize request, e.g. "java".
	AdapterID string `yaml:"adapter_id" validate:"required"`

	// Request is "launch" or "attach".
	Request string `yaml:"request" validate:"oneof=launch attach"`

	// Arguments are passed verbatim as the launch or attach arguments.
	Arguments map[string]any `yaml:"arguments,omitempty"`

	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"gte=1"`
	DialTimeout       time.Duration `yaml:"dial_timeout" validate:"gte=0"`
}

// RawArguments returns Arguments as JSON.
func (d DebuggerConfig) RawArguments() (json.RawMessage, error) {
	if len(d.Arguments) == 0 {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(d.Arguments)
	if err != nil {
		return nil, fmt.Errorf("encoding %s arguments: %w", d.Request, err)
	}
	return data, nil
}

// SessionConfig configures the session controller.
type SessionConfig struct {
	View                string `yaml:"view" validate:"omitempty,oneof=network diagram"`
	HistoryCapacity     int    `yaml:"history_capacity" validate:"gte=1"`
	MaxConcurrentFrames int    `yaml:"max_concurrent_frames" validate:"gte=1"`
}

// BuilderConfig bounds graph construction.
type BuilderConfig struct {
	MaxDepth             int `yaml:"max_depth" validate:"gte=1"`
	MaxValueLength       int `yaml:"max_value_length" validate:"gte=1"`
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches" validate:"gte=1"`
	MaxNodes             int `yaml:"max_nodes" validate:"gte=0"`
}

// Options converts the section to builder options.
func (b BuilderConfig) Options() []builder.BuilderOption {
	return []builder.BuilderOption{
		builder.WithMaxDepth(b.MaxDepth),
		builder.WithMaxValueLength(b.MaxValueLength),
		builder.WithMaxConcurrentFetches(b.MaxConcurrentFetches),
		builder.WithMaxNodes(b.MaxNodes),
	}
}

// Recording backends.
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// RecordingConfig selects where recordings are stored.
type RecordingConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=badger redis none"`
	Path        string `yaml:"path" validate:"required_if=Backend badger"`
	RedisURL    string `yaml:"redis_url,omitempty" validate:"required_if=Backend redis"`
	RedisPrefix string `yaml:"redis_prefix,omitempty"`

	// AutoStart begins a recording as soon as the server starts.
	AutoStart bool `yaml:"auto_start"`
}

// Badger returns the storage configuration for the badger backend.
func (r RecordingConfig) Badger() badger.Config {
	return badger.DefaultConfig(expandPath(r.Path))
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir    string `yaml:"dir,omitempty"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// Logging converts the section to a logging.Config.
func (l LoggingConfig) Logging(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:   level,
		LogDir:  l.Dir,
		Service: service,
		Format:  logging.Format(l.Format),
	}, nil
}

// Default returns the configuration written on first run.
func Default() *Config {
	b := builder.DefaultBuilderOptions()
	return &Config{
		Server: ServerConfig{Address: "127.0.0.1:7878"},
		Debugger: DebuggerConfig{
			Address:           "127.0.0.1:4711",
			AdapterID:         "java",
			Request:           "attach",
			RequestsPerSecond: 200,
			Burst:             50,
			DialTimeout:       10 * time.Second,
		},
		Session: SessionConfig{
			View:                string(render.ViewNetwork),
			HistoryCapacity:     500,
			MaxConcurrentFrames: 4,
		},
		Builder: BuilderConfig{
			MaxDepth:             b.MaxDepth,
			MaxValueLength:       b.MaxValueLength,
			MaxConcurrentFetches: b.MaxConcurrentFetches,
			MaxNodes:             b.MaxNodes,
		},
		Identity: identity.JavaProfile(),
		Style:    render.DefaultStyle(),
		Recording: RecordingConfig{
			Backend: BackendBadger,
			Path:    "~/.objectlens/recordings",
		},
		Logging:   LoggingConfig{Level: "info", Dir: "~/.objectlens/logs"},
		Telemetry: telemetry.DefaultConfig(),
	}
}
