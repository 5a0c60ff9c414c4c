// Based on research: "Sharpe >0.5, DD <20%, PF >1.5 predict live performance."
// This module grades whether a strategy's backtest results are worth trading.
package viability

import (
	"fmt"
	"time"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Thresholds defines the minimum requirements for a viable strategy.
type Thresholds struct {
	MinSharpeRatio  float64
	MaxDrawdown     float64
	MinProfitFactor float64
	MinWinRate      float64
	MinTrades       int

	MaxVaR95        float64
	MinSortinoRatio float64
	MinCalmarRatio  float64

	MinExpectancy     float64
	MinRecoveryFactor float64

	MinWFConsistency float64
	MinWFSharpe      float64
}

// DefaultThresholds returns conservative default thresholds.
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		MinSharpeRatio:    0.5,
		MaxDrawdown:       0.20,
		MinProfitFactor:   1.5,
		MinWinRate:        0.40,
		MinTrades:         30,
		MaxVaR95:          0.05,
		MinSortinoRatio:   0.8,
		MinCalmarRatio:    0.5,
		MinExpectancy:     0,
		MinRecoveryFactor: 1.0,
		MinWFConsistency:  0.60,
		MinWFSharpe:       0.3,
	}
}

// AggressiveThresholds relaxes requirements for higher risk tolerance.
func AggressiveThresholds() *Thresholds {
	return &Thresholds{
		MinSharpeRatio:    0.3,
		MaxDrawdown:       0.30,
		MinProfitFactor:   1.2,
		MinWinRate:        0.35,
		MinTrades:         20,
		MaxVaR95:          0.08,
		MinSortinoRatio:   0.5,
		MinCalmarRatio:    0.3,
		MinExpectancy:     0,
		MinRecoveryFactor: 0.5,
		MinWFConsistency:  0.50,
		MinWFSharpe:       0.2,
	}
}

// ConservativeThresholds tightens requirements for low risk tolerance.
func ConservativeThresholds() *Thresholds {
	return &Thresholds{
		MinSharpeRatio:    1.0,
		MaxDrawdown:       0.10,
		MinProfitFactor:   2.0,
		MinWinRate:        0.50,
		MinTrades:         50,
		MaxVaR95:          0.03,
		MinSortinoRatio:   1.5,
		MinCalmarRatio:    1.0,
		MinExpectancy:     0.001,
		MinRecoveryFactor: 2.0,
		MinWFConsistency:  0.75,
		MinWFSharpe:       0.5,
	}
}

// Issue names a single metric that fell short of its threshold.
type Issue struct {
	Metric      string  `json:"metric"`
	Actual      float64 `json:"actual"`
	Required    float64 `json:"required"`
	Severity    string  `json:"severity"` // "critical", "warning", "info"
	Description string  `json:"description"`
	Suggestion  string  `json:"suggestion"`
}

// Report is the full viability assessment for one backtest result.
type Report struct {
	IsViable  bool     `json:"is_viable"`
	Score     int      `json:"score"` // 0-100 overall viability score
	Grade     string   `json:"grade"` // A, B, C, D, F
	Issues    []Issue  `json:"issues"`
	Strengths []string `json:"strengths"`
	Summary   string   `json:"summary"`

	ReturnScore      int `json:"return_score"`
	RiskScore        int `json:"risk_score"`
	ConsistencyScore int `json:"consistency_score"`
	RobustnessScore  int `json:"robustness_score"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Checker assesses strategy viability against a fixed set of thresholds.
type Checker struct {
	thresholds *Thresholds
}

// NewChecker creates a viability checker.
func NewChecker(thresholds *Thresholds) *Checker {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &Checker{thresholds: thresholds}
}

// Check performs a comprehensive viability assessment. walkForward may be
// nil when the run did not request walk-forward analysis.
func (c *Checker) Check(metrics *types.PerformanceMetrics, risk *types.RiskMetrics, walkForward *types.WalkForwardResult) *Report {
	report := &Report{
		Issues:      make([]Issue, 0),
		Strengths:   make([]string, 0),
		GeneratedAt: time.Now(),
	}

	c.checkSharpeRatio(metrics, report)
	c.checkMaxDrawdown(metrics, report)
	c.checkProfitFactor(metrics, report)
	c.checkWinRate(metrics, report)
	c.checkTradeCount(metrics, report)

	if risk != nil {
		c.checkVaR(risk, report)
	}
	c.checkSortinoRatio(metrics, report)
	c.checkCalmarRatio(metrics, report)
	c.checkExpectancy(metrics, report)
	c.checkRecoveryFactor(metrics, report)

	if walkForward != nil {
		c.checkWalkForward(walkForward, report)
	}

	report.ReturnScore = c.calculateReturnScore(metrics)
	report.RiskScore = c.calculateRiskScore(metrics, risk)
	report.ConsistencyScore = c.calculateConsistencyScore(metrics)
	report.RobustnessScore = c.calculateRobustnessScore(walkForward)

	report.Score = (report.ReturnScore*30 + report.RiskScore*30 +
		report.ConsistencyScore*20 + report.RobustnessScore*20) / 100

	report.Grade = c.scoreToGrade(report.Score)
	report.IsViable = !c.hasCriticalIssues(report.Issues) && report.Score >= 60
	report.Summary = c.generateSummary(report)

	return report
}

func (c *Checker) checkSharpeRatio(m *types.PerformanceMetrics, r *Report) {
	if m.SharpeRatio < c.thresholds.MinSharpeRatio {
		severity := "warning"
		if m.SharpeRatio < 0 {
			severity = "critical"
		}
		r.Issues = append(r.Issues, Issue{
			Metric: "Sharpe Ratio", Actual: m.SharpeRatio, Required: c.thresholds.MinSharpeRatio,
			Severity: severity, Description: "Risk-adjusted return is below threshold",
			Suggestion: "Consider reducing trade frequency or improving entry signals",
		})
	} else if m.SharpeRatio > 1.5 {
		r.Strengths = append(r.Strengths, "Excellent risk-adjusted returns (Sharpe > 1.5)")
	}
}

func (c *Checker) checkMaxDrawdown(m *types.PerformanceMetrics, r *Report) {
	if m.MaxDrawdown > c.thresholds.MaxDrawdown {
		severity := "warning"
		if m.MaxDrawdown > 0.30 {
			severity = "critical"
		}
		r.Issues = append(r.Issues, Issue{
			Metric: "Max Drawdown", Actual: m.MaxDrawdown, Required: c.thresholds.MaxDrawdown,
			Severity: severity, Description: "Maximum drawdown exceeds acceptable level",
			Suggestion: "Consider tighter stop losses or smaller position sizes",
		})
	} else if m.MaxDrawdown < 0.10 {
		r.Strengths = append(r.Strengths, "Low drawdown risk (< 10%)")
	}
}

func (c *Checker) checkProfitFactor(m *types.PerformanceMetrics, r *Report) {
	if m.ProfitFactor < c.thresholds.MinProfitFactor {
		severity := "warning"
		if m.ProfitFactor < 1.0 {
			severity = "critical"
		}
		r.Issues = append(r.Issues, Issue{
			Metric: "Profit Factor", Actual: m.ProfitFactor, Required: c.thresholds.MinProfitFactor,
			Severity: severity, Description: "Profit factor is below threshold",
			Suggestion: "Focus on improving win size or reducing loss size",
		})
	} else if m.ProfitFactor > 2.0 {
		r.Strengths = append(r.Strengths, "Strong profit factor (> 2.0)")
	}
}

func (c *Checker) checkWinRate(m *types.PerformanceMetrics, r *Report) {
	if m.WinRate < c.thresholds.MinWinRate {
		severity := "warning"
		if m.WinRate < 0.30 {
			severity = "critical"
		}
		r.Issues = append(r.Issues, Issue{
			Metric: "Win Rate", Actual: m.WinRate, Required: c.thresholds.MinWinRate,
			Severity: severity, Description: "Win rate is below threshold",
			Suggestion: "Consider stricter entry criteria or better market filtering",
		})
	} else if m.WinRate > 0.60 {
		r.Strengths = append(r.Strengths, "High win rate (> 60%)")
	}
}

func (c *Checker) checkTradeCount(m *types.PerformanceMetrics, r *Report) {
	if m.TotalTrades < c.thresholds.MinTrades {
		r.Issues = append(r.Issues, Issue{
			Metric: "Trade Count", Actual: float64(m.TotalTrades), Required: float64(c.thresholds.MinTrades),
			Severity: "warning", Description: "Insufficient trades for statistical significance",
			Suggestion: "Extend backtest period or reduce filter strictness",
		})
	}
}

func (c *Checker) checkVaR(risk *types.RiskMetrics, r *Report) {
	if risk.VaR95 > c.thresholds.MaxVaR95 {
		r.Issues = append(r.Issues, Issue{
			Metric: "VaR 95%", Actual: risk.VaR95, Required: c.thresholds.MaxVaR95,
			Severity: "warning", Description: "Daily Value at Risk exceeds acceptable level",
			Suggestion: "Reduce position sizes or use tighter stops",
		})
	}
}

func (c *Checker) checkSortinoRatio(m *types.PerformanceMetrics, r *Report) {
	if m.SortinoRatio < c.thresholds.MinSortinoRatio {
		r.Issues = append(r.Issues, Issue{
			Metric: "Sortino Ratio", Actual: m.SortinoRatio, Required: c.thresholds.MinSortinoRatio,
			Severity: "info", Description: "Downside risk-adjusted return could be better",
			Suggestion: "Focus on reducing losing trade sizes",
		})
	} else if m.SortinoRatio > 2.0 {
		r.Strengths = append(r.Strengths, "Excellent downside protection (Sortino > 2.0)")
	}
}

func (c *Checker) checkCalmarRatio(m *types.PerformanceMetrics, r *Report) {
	if m.CalmarRatio < c.thresholds.MinCalmarRatio {
		r.Issues = append(r.Issues, Issue{
			Metric: "Calmar Ratio", Actual: m.CalmarRatio, Required: c.thresholds.MinCalmarRatio,
			Severity: "info", Description: "Return relative to drawdown could be better",
			Suggestion: "Improve returns or reduce maximum drawdown",
		})
	}
}

func (c *Checker) checkExpectancy(m *types.PerformanceMetrics, r *Report) {
	if m.Expectancy <= c.thresholds.MinExpectancy {
		severity := "warning"
		if m.Expectancy < 0 {
			severity = "critical"
		}
		r.Issues = append(r.Issues, Issue{
			Metric: "Expectancy", Actual: m.Expectancy, Required: c.thresholds.MinExpectancy,
			Severity: severity, Description: "Expected value per trade is too low or negative",
			Suggestion: "Strategy needs fundamental improvement",
		})
	}
}

func (c *Checker) checkRecoveryFactor(m *types.PerformanceMetrics, r *Report) {
	if m.MaxDrawdown == 0 {
		return
	}
	recoveryFactor := m.TotalReturn / m.MaxDrawdown
	if recoveryFactor < c.thresholds.MinRecoveryFactor {
		r.Issues = append(r.Issues, Issue{
			Metric: "Recovery Factor", Actual: recoveryFactor, Required: c.thresholds.MinRecoveryFactor,
			Severity: "info", Description: "Returns don't justify the drawdown risk",
			Suggestion: "Consider if the risk is worth the potential reward",
		})
	}
}

func (c *Checker) checkWalkForward(wf *types.WalkForwardResult, r *Report) {
	if wf == nil || len(wf.Windows) == 0 {
		return
	}

	profitableWindows := 0
	var totalSharpe float64
	for _, w := range wf.Windows {
		if w.OutSampleMetrics == nil {
			continue
		}
		if w.OutSampleMetrics.TotalReturn > 0 {
			profitableWindows++
		}
		totalSharpe += w.OutSampleMetrics.SharpeRatio
	}

	consistency := float64(profitableWindows) / float64(len(wf.Windows))
	avgSharpe := totalSharpe / float64(len(wf.Windows))

	if consistency < c.thresholds.MinWFConsistency {
		r.Issues = append(r.Issues, Issue{
			Metric: "Walk-Forward Consistency", Actual: consistency, Required: c.thresholds.MinWFConsistency,
			Severity: "warning", Description: "Strategy is inconsistent across different time periods",
			Suggestion: "Strategy may be overfit to specific market conditions",
		})
	} else {
		r.Strengths = append(r.Strengths, "Consistent out-of-sample performance")
	}

	if avgSharpe < c.thresholds.MinWFSharpe {
		r.Issues = append(r.Issues, Issue{
			Metric: "Walk-Forward Sharpe", Actual: avgSharpe, Required: c.thresholds.MinWFSharpe,
			Severity: "warning", Description: "Out-of-sample Sharpe ratio is low",
			Suggestion: "Strategy may perform worse in live trading than backtest suggests",
		})
	}
}

func (c *Checker) calculateReturnScore(m *types.PerformanceMetrics) int {
	score := 50

	if m.SharpeRatio > 0 {
		score += int(minFloat(30, m.SharpeRatio*20))
	} else {
		score -= 20
	}

	if m.SortinoRatio > 0 {
		score += int(minFloat(20, m.SortinoRatio*10))
	}

	return clamp(score, 0, 100)
}

func (c *Checker) calculateRiskScore(m *types.PerformanceMetrics, risk *types.RiskMetrics) int {
	score := 100

	score -= int(m.MaxDrawdown * 200)

	if risk != nil {
		score -= int(risk.VaR95 * 300)
	}

	return clamp(score, 0, 100)
}

func (c *Checker) calculateConsistencyScore(m *types.PerformanceMetrics) int {
	score := 0

	score += int(m.WinRate * 60)

	if m.ProfitFactor > 1 {
		score += int(minFloat(40, (m.ProfitFactor-1)*20))
	}

	switch {
	case m.TotalTrades >= 100:
		score += 20
	case m.TotalTrades >= 50:
		score += 15
	case m.TotalTrades >= 30:
		score += 10
	}

	return clamp(score, 0, 100)
}

func (c *Checker) calculateRobustnessScore(wf *types.WalkForwardResult) int {
	if wf == nil || len(wf.Windows) == 0 {
		return 50 // neutral when no walk-forward data was run
	}

	profitableWindows := 0
	for _, w := range wf.Windows {
		if w.OutSampleMetrics != nil && w.OutSampleMetrics.TotalReturn > 0 {
			profitableWindows++
		}
	}

	consistency := float64(profitableWindows) / float64(len(wf.Windows))
	return int(consistency * 100)
}

func (c *Checker) scoreToGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func (c *Checker) hasCriticalIssues(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == "critical" {
			return true
		}
	}
	return false
}

func (c *Checker) generateSummary(r *Report) string {
	if !r.IsViable {
		criticalCount := 0
		for _, issue := range r.Issues {
			if issue.Severity == "critical" {
				criticalCount++
			}
		}
		if criticalCount > 0 {
			return fmt.Sprintf("Strategy is NOT viable for trading. Found %d critical issues that must be addressed.", criticalCount)
		}
		return "Strategy does not meet minimum viability requirements. Consider fundamental changes."
	}

	switch r.Grade {
	case "A":
		return "Excellent strategy with strong risk-adjusted returns and consistency. Ready for paper trading."
	case "B":
		return "Good strategy with acceptable metrics. Consider paper trading before live deployment."
	case "C":
		return "Adequate strategy but monitor closely. Address warnings before scaling up."
	case "D":
		return "Marginally viable strategy. Significant improvements recommended before trading."
	default:
		return "Strategy needs substantial work before it can be considered for trading."
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(value, minVal, maxVal int) int {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
