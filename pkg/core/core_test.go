package core

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aeroalgo/robots-sub000/internal/discovery"
	"github.com/aeroalgo/robots-sub000/internal/optimization"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

func syntheticFrame(n int, tf types.Timeframe) types.PriceFrame {
	bars := make([]types.Bar, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.05 + 0.6*math.Sin(float64(i)*0.2)
		bars[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * tf.Duration()),
			Open:      price - 0.1,
			High:      price + 0.5,
			Low:       price - 0.5,
			Close:     price,
			Volume:    1000,
		}
	}
	return types.PriceFrame{Symbol: "TEST", Timeframe: tf, Bars: bars}
}

func TestRunOptimizationRejectsMissingBaseFrame(t *testing.T) {
	cfg := optimization.DefaultAlgorithmConfig()
	_, err := RunOptimization(context.Background(), cfg, discovery.DefaultBuilderConfig(), discovery.DefaultDiscoveryConfig(),
		[]types.PriceFrame{syntheticFrame(50, types.Timeframe4h)}, types.Timeframe1h, nil, 1, nil)
	if err == nil {
		t.Fatalf("expected an error when no frame matches the base timeframe")
	}
	coreErr, ok := err.(*CoreError)
	if !ok {
		t.Fatalf("expected a *CoreError, got %T", err)
	}
	if coreErr.Kind != DataUnavailable {
		t.Fatalf("expected DataUnavailable, got %s", coreErr.Kind)
	}
}

func TestRunOptimizationReturnsSortedPopulation(t *testing.T) {
	cfg := optimization.DefaultAlgorithmConfig()
	cfg.PopulationSize = 5
	cfg.LambdaSize = 5
	cfg.MaxGenerations = 1
	cfg.EnableSDS = false

	frame := syntheticFrame(300, types.Timeframe1h)
	out, err := RunOptimization(context.Background(), cfg, discovery.DefaultBuilderConfig(), discovery.DefaultDiscoveryConfig(),
		[]types.PriceFrame{frame}, types.Timeframe1h, nil, 5, nil)
	if err != nil {
		t.Fatalf("RunOptimization: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected at least one evaluated strategy")
	}
	for i := 1; i < len(out); i++ {
		if out[i].Fitness > out[i-1].Fitness {
			t.Fatalf("result not sorted by descending fitness at index %d", i)
		}
	}
}

func TestOptimizeStructureRejectsInvalidTimeframe(t *testing.T) {
	cfg := optimization.DefaultAlgorithmConfig()
	structure := discovery.StrategyCandidate{}
	_, err := OptimizeStructure(context.Background(), structure, cfg, nil, types.Timeframe("bogus"), 1, nil)
	if err == nil {
		t.Fatalf("expected an error for an invalid base timeframe")
	}
}
