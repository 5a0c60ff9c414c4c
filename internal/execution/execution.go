// Package execution implements the mock OrderExecutionProvider of
// SPEC_FULL.md §6: acknowledges every order at the requested price,
// simplified from the teacher's internal/backtester/orders.go
// OrderManager.checkOrderFill market-order path since this engine's
// non-goal is microstructure simulation, not exchange behavior.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// OrderRequest is a fill request for one trade leg.
type OrderRequest struct {
	Symbol    string
	Direction types.Direction
	Price     float64
	Quantity  float64
	Timeframe types.Timeframe
}

// OrderAck is the acknowledgement returned for an accepted order.
type OrderAck struct {
	OrderID     string
	FillPrice   float64
	Quantity    float64
	TimestampMs int64
}

// Position mirrors one currently open trade leg, for GetPositions.
type Position struct {
	Symbol    string
	Direction types.Direction
	Quantity  float64
	AvgPrice  float64
}

// Provider is the interface the orchestrator's caller layer (the worker
// pool) submits fills through. RunBacktest itself never calls Provider —
// it mutates internal/portfolio.Book directly, matching spec.md's
// explicit "no external cancellation token or I/O inside the core
// contract." Provider exists for callers that want the pool-level
// queueing, metrics, and circuit-breaking this package adds on top of a
// raw RunBacktest call, e.g. a live order-staging front-end to the API.
type Provider interface {
	PlaceBuyOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	PlaceSellOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	GetPositions(ctx context.Context) ([]Position, error)
}

// ErrInvalidOrder is returned for malformed order requests (zero/negative
// price or quantity) — the failure mode the circuit breaker below
// watches for.
var ErrInvalidOrder = errors.New("execution: invalid order request")

// MockProvider is the only OrderExecutionProvider this repository ships:
// it acknowledges every well-formed order at the requested price,
// updating an in-memory position book. There is no slippage, partial
// fill, or order-book model — fills happen at the signal-bar close the
// caller already resolved before submitting the request.
type MockProvider struct {
	mu        sync.Mutex
	logger    *zap.Logger
	breaker   *gobreaker.CircuitBreaker
	positions map[string]Position
	nextID    int
}

// NewMockProvider builds a MockProvider with a gobreaker.CircuitBreaker
// tripping after 5 consecutive invalid-order failures within a 60-second
// window, per SPEC_FULL.md §11.7. This breaker is a distinct, narrower
// concern than the orchestrator's own drawdown-based circuit breaker
// (spec.md §4.1 step 11): it protects the execution collaborator from a
// caller that keeps submitting malformed requests, not the backtest's P&L.
func NewMockProvider(logger *zap.Logger) *MockProvider {
	p := &MockProvider{
		logger:    logger.Named("execution"),
		positions: make(map[string]Position),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "execution-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("execution circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return p
}

func (p *MockProvider) PlaceBuyOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	return p.place(ctx, req, types.DirectionLong)
}

func (p *MockProvider) PlaceSellOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	return p.place(ctx, req, types.DirectionShort)
}

func (p *MockProvider) place(ctx context.Context, req OrderRequest, dir types.Direction) (OrderAck, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		if req.Price <= 0 || req.Quantity <= 0 || req.Symbol == "" {
			return nil, ErrInvalidOrder
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		p.nextID++
		ack := OrderAck{
			OrderID:     fmt.Sprintf("ord-%d", p.nextID),
			FillPrice:   req.Price,
			Quantity:    req.Quantity,
			TimestampMs: time.Now().UnixMilli(),
		}
		p.positions[req.Symbol] = Position{
			Symbol: req.Symbol, Direction: dir, Quantity: req.Quantity, AvgPrice: req.Price,
		}
		return ack, nil
	})
	if err != nil {
		return OrderAck{}, err
	}
	return result.(OrderAck), nil
}

func (p *MockProvider) GetPositions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}
