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

// Package tracing wraps the OpenTelemetry SDK with the stdout exporter:
// one span per workflow run, one child span per step.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps a TracerProvider writing spans to w (os.Stderr in
// production, a buffer in tests).
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds a Provider exporting spans as indented JSON to w.
func NewProvider(serviceName string, w io.Writer) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("tracing: build stdout exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp}, nil
}

// Tracer returns the named tracer, e.g. "argo-executor".
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans and releases exporter resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// WorkflowRun starts the single span covering one executor's entire run.
func WorkflowRun(ctx context.Context, tracer trace.Tracer, workflowID, templateName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attrString("workflow_id", workflowID),
		attrString("template_name", templateName),
	))
}

// Step starts a child span for one step of the running workflow.
func Step(ctx context.Context, tracer trace.Tracer, stepID, stepType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attrString("step_id", stepID),
		attrString("step_type", stepType),
	))
}

func attrString(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
