package otelcol

import (
	"context"
	"testing"

	"storefront-core/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func TestSampler(t *testing.T) {
	require.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestProvideTraceDisabledWithoutEndpoint(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	require.NoError(t, ProvideTrace(lc, &config.Config{}))
	lc.RequireStart().RequireStop()
}

func TestUnknownProtocol(t *testing.T) {
	cfg := &config.Config{}
	cfg.Otel.Endpoint = "collector:4317"
	cfg.Otel.Protocol = "carrier-pigeon"

	_, err := newExporter(context.Background(), cfg)
	require.Error(t, err)
}
