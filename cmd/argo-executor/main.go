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

// Command argo-executor drives a single workflow's step graph to
// completion. It is never invoked directly by a user — the daemon spawns
// one instance per running workflow (internal/execlifecycle.Spawner),
// passing the workflow id, template path, branch, and daemon URL via
// ARGO_* environment variables.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ckoons/argo/internal/ciquery"
	"github.com/ckoons/argo/internal/iochannel"
	internallog "github.com/ckoons/argo/internal/log"
	"github.com/ckoons/argo/internal/registry"
	"github.com/ckoons/argo/internal/stepdriver"
	"github.com/ckoons/argo/internal/tracing"
	"github.com/ckoons/argo/pkg/httpclient"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := internallog.WithComponent(internallog.New(internallog.FromEnv()), "executor")
	slog.SetDefault(logger)

	workflowID := os.Getenv("ARGO_WORKFLOW_ID")
	if workflowID == "" && len(os.Args) > 1 {
		workflowID = os.Args[1]
	}
	templatePath := os.Getenv("ARGO_TEMPLATE_PATH")
	branch := os.Getenv("ARGO_BRANCH")
	daemonURL := os.Getenv("ARGO_DAEMON_URL")

	logger = logger.With(internallog.WorkflowIDKey, workflowID)

	if workflowID == "" || templatePath == "" || daemonURL == "" {
		logger.Error("missing required environment", "have_workflow_id", workflowID != "", "have_template_path", templatePath != "", "have_daemon_url", daemonURL != "")
		return registry.ExitGenericFailure
	}

	if provider, err := tracing.NewProvider("argo-executor", os.Stderr); err != nil {
		logger.Warn("tracing disabled", internallog.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
	}

	tpl, err := stepdriver.LoadTemplate(templatePath)
	if err != nil {
		logger.Error("template load failed", internallog.Error(err))
		return registry.ExitGenericFailure
	}

	stepCtx := stepdriver.NewContext(map[string]string{
		"workflow_id": workflowID,
		"branch":      branch,
	})

	channel, err := iochannel.NewHTTPChannel(daemonURL, workflowID)
	if err != nil {
		logger.Error("io channel init failed", internallog.Error(err))
		return registry.ExitGenericFailure
	}
	channel = channel.WithPollBudget(iochannel.ChatPollBudget)

	providerName := os.Getenv("ARGO_CI_PROVIDER")
	if providerName == "" {
		providerName = "default"
	}
	provider, err := ciquery.NewRemoteProvider(daemonURL, providerName)
	if err != nil {
		logger.Error("ci provider init failed", internallog.Error(err))
		return registry.ExitGenericFailure
	}

	progressClient, err := httpclient.New(httpclient.DefaultConfig())
	if err != nil {
		logger.Error("progress client init failed", internallog.Error(err))
		return registry.ExitGenericFailure
	}
	progress := progressReporter(progressClient, daemonURL, workflowID)

	logPath := os.Getenv("ARGO_LOG_PATH")
	driver := stepdriver.New(tpl, stepCtx, provider, channel, progress, logger, logPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGUSR1:
				logger.Info("pause signal received")
				driver.Pause()
			case syscall.SIGUSR2:
				logger.Info("resume signal received")
				driver.Resume()
			case syscall.SIGTERM:
				logger.Info("terminate signal received")
				driver.Stop()
			}
		}
	}()

	result, err := driver.Run(ctx)
	if err != nil {
		logger.Error("workflow run failed", internallog.Error(err))
	}
	return result.ExitCode
}

const shutdownGrace = 2 * time.Second

func progressReporter(client *http.Client, daemonURL, workflowID string) stepdriver.ProgressFunc {
	return func(currentStep, totalSteps int, stepName string) error {
		body, err := json.Marshal(map[string]any{
			"current_step": currentStep,
			"total_steps":  totalSteps,
			"step_name":    stepName,
		})
		if err != nil {
			return fmt.Errorf("executor: marshal progress: %w", err)
		}

		url := fmt.Sprintf("%s/api/workflow/progress/%s", daemonURL, workflowID)
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("executor: build progress request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("executor: report progress: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("executor: report progress: daemon returned %d", resp.StatusCode)
		}
		return nil
	}
}
