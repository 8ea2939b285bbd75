// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/objectlens/cmd/objectlens/config"
	"github.com/AleutianAI/objectlens/services/lens/builder"
	"github.com/AleutianAI/objectlens/services/lens/dap"
	"github.com/AleutianAI/objectlens/services/lens/identity"
	"github.com/AleutianAI/objectlens/services/lens/observability"
	"github.com/AleutianAI/objectlens/services/lens/recording"
	"github.com/AleutianAI/objectlens/services/lens/render"
	"github.com/AleutianAI/objectlens/services/lens/server"
	"github.com/AleutianAI/objectlens/services/lens/session"
	"github.com/AleutianAI/objectlens/services/lens/telemetry"
)

type serveFlags struct {
	address   string
	dapAddr   string
	request   string
	arguments string
	view      string
	record    bool
}

func newServeCmd(a *app) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Attach to a debug adapter and serve the object graph to panels",
		Long: `serve connects to the debug adapter, performs the launch or attach
handshake, and serves panels on the configured address until interrupted or
the debug session ends.`,
		Example: `  objectlens serve --dap 127.0.0.1:5005 --request attach
  objectlens serve --request launch --args '{"mainClass":"demo.Main"}' --view diagram`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := f.apply(a.cfg); err != nil {
				return err
			}
			return runServe(cmd.Context(), a, f.record)
		},
	}
	cmd.Flags().StringVar(&f.address, "address", "", "panel server listen address (server.address)")
	cmd.Flags().StringVar(&f.dapAddr, "dap", "", "debug adapter host:port (debugger.address)")
	cmd.Flags().StringVar(&f.request, "request", "", "launch or attach (debugger.request)")
	cmd.Flags().StringVar(&f.arguments, "args", "", "launch/attach arguments as a JSON object (debugger.arguments)")
	cmd.Flags().StringVar(&f.view, "view", "", "network or diagram (session.view)")
	cmd.Flags().BoolVar(&f.record, "record", false, "start recording immediately")
	return cmd
}

// apply overlays set flags on cfg and revalidates it.
func (f serveFlags) apply(cfg *config.Config) error {
	if f.address != "" {
		cfg.Server.Address = f.address
	}
	if f.dapAddr != "" {
		cfg.Debugger.Address = f.dapAddr
	}
	if f.request != "" {
		cfg.Debugger.Request = f.request
	}
	if f.view != "" {
		cfg.Session.View = f.view
	}
	if f.arguments != "" {
		var args map[string]any
		if err := json.Unmarshal([]byte(f.arguments), &args); err != nil {
			return fmt.Errorf("--args must be a JSON object: %w", err)
		}
		cfg.Debugger.Arguments = args
	}
	return cfg.Validate()
}

func runServe(ctx context.Context, a *app, record bool) error {
	cfg := a.cfg
	logger := a.slog()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, reg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	store, err := openStore(ctx, cfg.Recording)
	if err != nil && !errors.Is(err, errRecordingDisabled) {
		return err
	}
	var recorder *recording.Recorder
	if store != nil {
		defer store.Close()
		recorder = recording.NewRecorder(store,
			recording.WithRecorderLogger(logger),
			recording.WithRecorderMetrics(metrics),
		)
	}

	scheme, err := identity.NewScheme(cfg.Identity)
	if err != nil {
		return err
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.Debugger.DialTimeout)
	client, err := dap.Dial(dialCtx, cfg.Debugger.Address,
		dap.WithRateLimit(cfg.Debugger.RequestsPerSecond, cfg.Debugger.Burst),
		dap.WithLogger(logger),
	)
	cancelDial()
	if err != nil {
		return fmt.Errorf("connecting to debug adapter at %s: %w", cfg.Debugger.Address, err)
	}
	defer client.Close()

	hub := server.NewHub(server.WithHubMetrics(metrics), server.WithHubLogger(logger))

	view, err := render.ParseView(cfg.Session.View)
	if err != nil {
		return err
	}
	b := builder.NewBuilder(client, scheme, append(cfg.Builder.Options(), builder.WithLogger(logger))...)
	opts := []session.Option{
		session.WithView(view),
		session.WithStyle(cfg.Style),
		session.WithHistoryCapacity(cfg.Session.HistoryCapacity),
		session.WithMaxConcurrentFrames(cfg.Session.MaxConcurrentFrames),
		session.WithMetrics(metrics),
		session.WithLogger(logger),
	}
	if recorder != nil {
		opts = append(opts, session.WithCapturer(recorder))
	}
	ctrl, err := session.NewController(client, b, hub, opts...)
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		Controller:     ctrl,
		Hub:            hub,
		Gatherer:       reg,
		ServiceName:    cfg.Telemetry.ServiceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Debug:          cfg.Server.Debug,
		Logger:         logger,
	}
	if recorder != nil {
		srvCfg.Recorder = recorder
		srvCfg.Store = store
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	if err := handshake(ctx, client, cfg.Debugger); err != nil {
		return err
	}
	if recorder != nil && (record || cfg.Recording.AutoStart) {
		if _, err := recorder.Start(ctx, ""); err != nil {
			return err
		}
	}

	a.printer.Box("objectlens", fmt.Sprintf("panels:   ws://%s/v1/lens/ws\nadapter:  %s (%s)\nview:     %s",
		cfg.Server.Address, cfg.Debugger.Address, cfg.Debugger.Request, view))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Address)
	})
	g.Go(func() error {
		err := ctrl.Run(gctx, client.Events())
		// The adapter closing the session ends the server too.
		stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := config.Watch(gctx, a.configPath, logger, func(next *config.Config) {
			if err := ctrl.SetStyle(gctx, next.Style); err != nil {
				logger.Warn("applying reloaded style failed", slog.String("error", err.Error()))
			}
		})
		if err != nil {
			logger.Warn("style hot reload disabled", slog.String("error", err.Error()))
		}
		return nil
	})
	err = g.Wait()

	finish(logger, client, recorder)
	if err != nil {
		return err
	}
	a.printer.Success("debug session ended")
	return nil
}

// handshake runs initialize, launch or attach, and configurationDone.
func handshake(ctx context.Context, client *dap.Client, d config.DebuggerConfig) error {
	if _, err := client.Initialize(ctx, "objectlens", d.AdapterID); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	args, err := d.RawArguments()
	if err != nil {
		return err
	}
	switch d.Request {
	case "launch":
		err = client.Launch(ctx, args)
	default:
		err = client.Attach(ctx, args)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", d.Request, err)
	}
	if err := client.ConfigurationDone(ctx); err != nil {
		return fmt.Errorf("configurationDone: %w", err)
	}
	return nil
}

// finish stops an active recording and detaches from the adapter.
func finish(logger *slog.Logger, client *dap.Client, recorder *recording.Recorder) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if recorder != nil && recorder.IsRecording() {
		if rec, err := recorder.Stop(ctx); err != nil {
			logger.Warn("stopping recording failed", slog.String("error", err.Error()))
		} else {
			logger.Info("recording saved", slog.String("recording_id", rec.ID), slog.Int("frames", rec.FrameCount))
		}
	}
	select {
	case <-client.Done():
		return
	default:
	}
	if err := client.Disconnect(ctx, false); err != nil && !errors.Is(err, dap.ErrClosed) {
		logger.Warn("disconnect failed", slog.String("error", err.Error()))
	}
}
