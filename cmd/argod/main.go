// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ckoons/argo/internal/ciquery"
	"github.com/ckoons/argo/internal/config"
	"github.com/ckoons/argo/internal/daemonapi"
	"github.com/ckoons/argo/internal/execlifecycle"
	"github.com/ckoons/argo/internal/iobuffer"
	internallog "github.com/ckoons/argo/internal/log"
	"github.com/ckoons/argo/internal/registry"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "argod",
		Short:         "argod runs the workflow daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to an argo.yaml overlay")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("argod %s (commit %s)\n", version, commit)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := internallog.WithComponent(internallog.New(internallog.FromEnv()), "daemon")
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg := registry.New(cfg.RegistryPath)
	if err := reg.Load(func(msg string) { logger.Warn(msg) }); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	manager := execlifecycle.NewManager(cfg, reg, logger)
	manager.Start()
	defer manager.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tickInterval := 1 * time.Second
	go manager.Run(ctx, tickInterval)

	io := iobuffer.New()
	handler := daemonapi.New(reg, manager, io, ciquery.EchoProvider{}, logger, version)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	server := &http.Server{
		Handler:      internallog.HTTPMiddleware(logger)(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("argod starting", "addr", ln.Addr().String(), "version", version)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer shutdownCancel()

	server.SetKeepAlivesEnabled(false)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	for _, e := range reg.List() {
		if e.State != registry.StateRunning || e.ExecutorPID == 0 {
			continue
		}
		if err := execlifecycle.GracefulShutdown(e.ExecutorPID, cfg.ShutdownGrace); err != nil {
			logger.Error("executor shutdown failed", "workflow_id", e.ID, "pid", e.ExecutorPID, "error", err)
		}
	}

	if err := reg.FlushIfDirty(); err != nil {
		logger.Error("final registry flush failed", "error", err)
	}

	return nil
}
