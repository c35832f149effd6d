// Package optimization implements the joint structural-and-parameter
// genetic optimizer: a mu+lambda evolutionary loop
// over discovery.StrategyCandidate individuals, with structural and
// parameter crossover/mutation, Stochastic Diffusion Search refinement,
// diversity-preserving environmental selection, island-model migration,
// and threshold-gated weighted-sum fitness.
package optimization

import (
	"runtime"
	"time"
)

// AlgorithmConfig is the optimizer-scope configuration a caller's
// loader populates.
type AlgorithmConfig struct {
	PopulationSize  int
	MaxGenerations  int
	CrossoverRate   float64
	MutationRate    float64
	ElitismCount    int
	LambdaSize      int // offspring produced per generation; mu+lambda selects PopulationSize survivors from mu+lambda
	IslandsCount    int
	MigrationInterval int // generations between migrations
	MigrationRate     float64 // fraction of each island's population exchanged

	FitnessThresholds FitnessThresholds
	FitnessWeights    FitnessWeights

	UseExistingStrategies   bool // seed initial population with previously discovered strategies
	DecimationCoefficient   float64 // not read by the optimizer; a stagnation restart replaces the weakest FreshBloodRate fraction
	FilterInitialPopulation bool // not read by the optimizer; generation 0 is gated by ComputeFitness like every later generation
	RestartOnFinish         bool
	RestartOnStagnation     int // generations without improvement before a restart; 0 disables
	FreshBloodRate          float64

	DetectDuplicates bool
	EnableSDS        bool
	SDSPasses        int

	ParamMutationMinPercent float64
	ParamMutationMaxPercent float64

	MaxWorkers int // bounds concurrent evaluations; 0 means runtime.NumCPU()

	Timeout time.Duration
}

// ParallelWorkers returns MaxWorkers, or runtime.NumCPU() when unset.
func (c AlgorithmConfig) ParallelWorkers() int {
	if c.MaxWorkers > 0 {
		return c.MaxWorkers
	}
	return runtime.NumCPU()
}

// DefaultAlgorithmConfig returns the defaults used when none are supplied.
func DefaultAlgorithmConfig() AlgorithmConfig {
	return AlgorithmConfig{
		PopulationSize:    60,
		MaxGenerations:    50,
		CrossoverRate:     0.7,
		MutationRate:      0.25,
		ElitismCount:      3,
		LambdaSize:        60,
		IslandsCount:      1,
		MigrationInterval: 10,
		MigrationRate:     0.1,

		FitnessThresholds: DefaultFitnessThresholds(),
		FitnessWeights:    DefaultFitnessWeights(),

		UseExistingStrategies:   false,
		DecimationCoefficient:   0.2,
		FilterInitialPopulation: false,
		RestartOnFinish:         false,
		RestartOnStagnation:     15,
		FreshBloodRate:          0.15,

		DetectDuplicates: true,
		EnableSDS:        true,
		SDSPasses:        3,

		ParamMutationMinPercent: 0.05,
		ParamMutationMaxPercent: 0.3,

		Timeout: 10 * time.Minute,
	}
}

// FitnessThresholds are hard gates: any individual
// whose backtest metrics fail to clear every configured threshold scores
// a fitness of exactly zero, regardless of its weighted-sum components.
type FitnessThresholds struct {
	MinTrades        int
	MinWinRate       float64
	MinProfitFactor  float64
	MaxDrawdownPct   float64
	MinSharpe        float64
	MinTotalProfit   float64
	MinCagr          float64
	MaxMaxDrawdown   float64 // absolute, as opposed to MaxDrawdownPct; 0 disables
}

// DefaultFitnessThresholds returns permissive defaults that reject only
// strategies with pathological metrics (no trades, certain ruin).
func DefaultFitnessThresholds() FitnessThresholds {
	return FitnessThresholds{
		MinTrades:       10,
		MinWinRate:      0,
		MinProfitFactor: 1.0,
		MaxDrawdownPct:  0.5,
		MinSharpe:       0,
		MinTotalProfit:  0,
		MinCagr:         0,
		MaxMaxDrawdown:  0,
	}
}

// FitnessWeights weight each metric's contribution to the weighted-sum
// fitness computed once an individual clears every threshold.
type FitnessWeights struct {
	ProfitFactor float64
	Sharpe       float64
	Sortino      float64
	Calmar       float64
	WinRate      float64
	TotalReturn  float64
	Cagr         float64
	Drawdown     float64 // weight applied to (1 - drawdown); higher drawdown always subtracts

	// ProfitNormalizationDenominator, when set, changes what the
	// TotalReturn weight scores: TotalProfit divided by this value. Zero
	// falls back to scoring TotalReturn directly (profit already
	// normalized by starting capital).
	ProfitNormalizationDenominator float64
}

// DefaultFitnessWeights gives Sharpe the largest single weight, while
// still rewarding profit factor and penalizing drawdown.
func DefaultFitnessWeights() FitnessWeights {
	return FitnessWeights{
		ProfitFactor: 0.25,
		Sharpe:       0.3,
		Sortino:      0.1,
		Calmar:       0.05,
		WinRate:      0.1,
		TotalReturn:  0.05,
		Cagr:         0.1,
		Drawdown:     0.05,

		ProfitNormalizationDenominator: 0,
	}
}
