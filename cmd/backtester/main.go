// Package main provides the entry point for the backtest engine server and
// its headless single-run mode. Adapted from the teacher's
// cmd/server/main.go flag-handling and graceful-shutdown idiom, re-pointed
// from live-trading startup (exchange adapters, autonomous agent, event
// bus) to the deterministic backtest stack: candle loader, strategy
// registry, orchestrator, worker pool, and API server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-quant/backtestengine/internal/api"
	"github.com/atlas-quant/backtestengine/internal/config"
	"github.com/atlas-quant/backtestengine/internal/data"
	"github.com/atlas-quant/backtestengine/internal/metrics"
	"github.com/atlas-quant/backtestengine/internal/montecarlo"
	"github.com/atlas-quant/backtestengine/internal/optimization"
	"github.com/atlas-quant/backtestengine/internal/orchestrator"
	"github.com/atlas-quant/backtestengine/internal/regime"
	"github.com/atlas-quant/backtestengine/internal/strategy"
	"github.com/atlas-quant/backtestengine/internal/viability"
	"github.com/atlas-quant/backtestengine/internal/walkforward"
	"github.com/atlas-quant/backtestengine/internal/workers"
	"github.com/atlas-quant/backtestengine/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML/JSON/TOML)")
	dataDir := flag.String("data-dir", "./data", "Directory of <SYMBOL>_<TIMEFRAME>.csv candle files")
	addr := flag.String("addr", "", "HTTP listen address, overriding config's server.host:server.port")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	once := flag.Bool("once", false, "Run a single backtest from -config and -data-dir to stdout as JSON, then exit")
	optimize := flag.Bool("optimize", false, "Search emaGapAtr parameters over -config's candle range instead of running a single backtest, then exit")
	optimizeMethod := flag.String("optimize-method", string(optimization.MethodGeneticAlgo), "Search method: grid, genetic, random")
	flag.Parse()

	logger := buildLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *dataDir != "" {
		cfg.Data.DataDir = *dataDir
	}

	registry := strategy.NewRegistry()
	loader := data.NewLoader(logger, cfg.Data.DataDir)
	orch := orchestrator.New(logger, registry)

	if *optimize {
		runOptimize(logger, cfg, loader, orch, optimization.OptimizationMethod(*optimizeMethod))
		return
	}

	if *once {
		runOnce(logger, cfg, loader, orch)
		return
	}

	runServer(logger, cfg, *addr, loader, orch)
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.Set(level); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

// runOnce executes a single backtest headlessly, the single-run mode
// SPEC_FULL.md §12.1 adds beyond the teacher's server-only entrypoint.
func runOnce(logger *zap.Logger, cfg *config.RunConfig, loader *data.Loader, orch *orchestrator.Orchestrator) {
	commission, err := cfg.CommissionRate()
	if err != nil {
		logger.Fatal("invalid commission", zap.Error(err))
	}
	strategyCfg := cfg.Strategy

	end := time.Now()
	start := end.AddDate(-1, 0, 0)

	candles, err := loader.GetHistoricalCandles(strategyCfg.Symbol, strategyCfg.Timeframe, start, end)
	if err != nil {
		logger.Fatal("failed to load candles", zap.Error(err))
	}

	result, err := orch.RunBacktest(&strategyCfg, candles)
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}

	output := map[string]interface{}{
		"result":         result,
		"commissionRate": commission,
		"estimatedCosts": roundTripCommission(result.Trades, commission),
	}

	if cfg.MonteCarlo.Enabled {
		sim := montecarlo.NewSimulator(logger, &montecarlo.SimulatorConfig{
			NumSimulations:   cfg.MonteCarlo.Iterations,
			ConfidenceLevels: []float64{cfg.MonteCarlo.ConfidenceLevel},
		})
		seq := montecarlo.TradeSequenceFromTrades(result.Trades)
		output["monteCarlo"] = sim.RunSimulation(seq, strategyCfg.Capital)
	}

	if cfg.WalkForward.Enabled {
		wfAnalyzer := walkforward.NewAnalyzer(logger, loader, orch)
		wfResult, err := wfAnalyzer.Run(strategyCfg, start, end, cfg.WalkForward)
		if err != nil {
			logger.Warn("walk-forward analysis failed", zap.Error(err))
		} else {
			output["walkForward"] = wfResult
		}
	}

	calc := viability.NewMetricsCalculator()
	perfMetrics := calc.Calculate(result.Trades, result.EquityCurve, strategyCfg.Capital)
	riskMetrics := calc.CalculateRiskMetrics(result.EquityCurve)
	checker := viability.NewChecker(viability.DefaultThresholds())
	var wfForViability *types.WalkForwardResult
	if wf, ok := output["walkForward"].(*types.WalkForwardResult); ok {
		wfForViability = wf
	}
	output["viability"] = checker.Check(perfMetrics, riskMetrics, wfForViability)

	output["regime"] = regime.AnalyzeCandles(logger, candles)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		logger.Fatal("failed to encode result", zap.Error(err))
	}
}

// roundTripCommission estimates the cost commission would have added had
// the core loop modeled it, at rate applied to both legs of every closed
// trade's notional. Reported alongside, not folded into, BacktestResult:
// spec.md's non-goals allow commission modeling only "beyond a
// configurable constant (optional)", so the pinned core loop stays
// commission-free and this is purely an informational estimate.
func roundTripCommission(trades []types.CompletedTrade, rate float64) float64 {
	if rate == 0 {
		return 0
	}
	var total float64
	for _, t := range trades {
		notional := t.EntryPrice * t.Quantity
		total += notional*rate + t.ExitPrice*t.Quantity*rate
	}
	return total
}

// runOptimize searches the current strategy's emaGapAtr parameters over the
// same one-year candle range -once backtests, scoring each trial by Sharpe
// ratio from a full orchestrator.RunBacktest pass. Per SPEC_FULL.md's domain
// stack, this is the optimizer's only caller in the tree.
func runOptimize(logger *zap.Logger, cfg *config.RunConfig, loader *data.Loader, orch *orchestrator.Orchestrator, method optimization.OptimizationMethod) {
	strategyCfg := cfg.Strategy

	end := time.Now()
	start := end.AddDate(-1, 0, 0)

	candles, err := loader.GetHistoricalCandles(strategyCfg.Symbol, strategyCfg.Timeframe, start, end)
	if err != nil {
		logger.Fatal("failed to load candles", zap.Error(err))
	}

	objective, err := optimization.NewEmaGapAtrObjective(orch, strategyCfg, candles)
	if err != nil {
		logger.Fatal("cannot build optimization objective", zap.Error(err))
	}

	optCfg := optimization.DefaultOptimizerConfig()
	optCfg.Method = method
	optCfg.TargetMetric = "sharpe"
	opt := optimization.NewOptimizer(logger, optCfg)

	result, err := opt.Optimize(context.Background(), optimization.EmaGapAtrParameterSpace(), objective)
	if err != nil {
		logger.Fatal("optimization failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatal("failed to encode optimization result", zap.Error(err))
	}
}

func runServer(logger *zap.Logger, cfg *config.RunConfig, addrOverride string, loader *data.Loader, orch *orchestrator.Orchestrator) {
	if addrOverride != "" {
		host, portStr, err := net.SplitHostPort(addrOverride)
		if err != nil {
			logger.Fatal("invalid -addr", zap.String("addr", addrOverride), zap.Error(err))
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			logger.Fatal("invalid -addr port", zap.String("addr", addrOverride), zap.Error(err))
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}

	metricsRegistry := metrics.NewRegistry(prometheus.DefaultRegisterer)

	pool := workers.NewPool(logger, workers.DefaultPoolConfig("backtest"))
	pool.Start()
	defer pool.Stop()

	server := api.NewServer(logger, &cfg.Server, loader, orch, pool)
	server.OnRunComplete(metricsRegistry.ObserveRun)
	server.Router().Handle("/metrics", promhttp.Handler()).Methods("GET")

	go func() {
		logger.Info("starting server", zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))
		if err := server.Start(); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
