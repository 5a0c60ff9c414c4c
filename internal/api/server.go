// Package api exposes backtest submission and streaming over HTTP and
// WebSocket, adapted from the teacher's internal/api/server.go: the same
// gorilla/mux + gorilla/websocket + rs/cors routing and message-envelope
// protocol, re-pointed from live-trading control at exchange adapters to
// submitting (StrategyConfig, candle range) pairs to the orchestrator's
// worker pool and streaming the resulting equity curve.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/internal/data"
	"github.com/atlas-quant/backtestengine/internal/orchestrator"
	"github.com/atlas-quant/backtestengine/internal/workers"
	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Server is the HTTP/WebSocket API server.
type Server struct {
	mu           sync.RWMutex
	logger       *zap.Logger
	config       *types.ServerConfig
	router       *mux.Router
	httpServer   *http.Server
	upgrader     websocket.Upgrader
	clients      map[string]*Client
	loader       *data.Loader
	orchestrator *orchestrator.Orchestrator
	pool         *workers.Pool
	runs         map[string]*RunState

	// onRunComplete, if set via OnRunComplete, is called once per finished
	// run with its termination reason, wall-clock duration, and per-trade
	// exit reasons. A callback rather than a direct internal/metrics
	// import keeps this package's only coupling to metrics the /metrics
	// route registered on Router() by the caller.
	onRunComplete func(termination string, duration time.Duration, exitReasons []string)
}

// Client is one connected WebSocket subscriber.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Subs map[string]bool
}

// RunState tracks one submitted backtest.
type RunState struct {
	ID      string
	Config  *types.BacktestConfig
	Status  string // "running", "completed", "failed"
	Started time.Time
	Result  *types.BacktestResult
	Error   string
}

// Message is the WebSocket request/response/event envelope, unchanged
// from the teacher's protocol shape.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"` // request, response, event
	Method    string      `json:"method"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewServer builds an API server backed by a candle loader, an
// orchestrator (carrying a strategy registry), and a worker pool that
// runs submitted backtests off the request goroutine.
func NewServer(logger *zap.Logger, config *types.ServerConfig, loader *data.Loader, orch *orchestrator.Orchestrator, pool *workers.Pool) *Server {
	s := &Server{
		logger:       logger.Named("api"),
		config:       config,
		router:       mux.NewRouter(),
		clients:      make(map[string]*Client),
		loader:       loader,
		orchestrator: orch,
		pool:         pool,
		runs:         make(map[string]*RunState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/backtests", s.handleRunBacktest).Methods("POST")
	s.router.HandleFunc("/api/v1/backtests/{id}", s.handleGetBacktest).Methods("GET")
	s.router.HandleFunc("/api/v1/backtests/{id}/trades", s.handleGetBacktestTrades).Methods("GET")
	s.router.HandleFunc("/api/v1/backtests/{id}/stream", s.handleWebSocket)
}

// Router exposes the underlying mux.Router so callers can register the
// /metrics handler (internal/metrics) alongside it without this package
// importing internal/metrics directly.
func (s *Server) Router() *mux.Router { return s.router }

// OnRunComplete registers fn to be called once per finished run. Intended
// for wiring a metrics.Registry.ObserveRun call from main.go without this
// package depending on internal/metrics.
func (s *Server) OnRunComplete(fn func(termination string, duration time.Duration, exitReasons []string)) {
	s.onRunComplete = fn
}

// Start begins serving HTTP, wrapped with permissive rs/cors for
// browser callers.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop closes every WebSocket connection and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "healthy", "time": time.Now().Unix()})
}

// backtestRequest is the POST /api/v1/backtests body: a BacktestConfig
// plus the candle range to load via the loader.
type backtestRequest struct {
	types.BacktestConfig
}

// handleRunBacktest loads candles for the submitted config's symbol/
// timeframe/date range, then submits one BacktestTask to the worker
// pool. RunBacktest itself carries no cancellation token or progress
// channel (spec.md's explicit "no I/O inside the core contract"), so
// this layer has no live per-candle progress to forward — only a
// start/complete/failed lifecycle and, on completion, the full equity
// curve streamed to WebSocket subscribers in one event.
func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	state := &RunState{ID: req.ID, Config: &req.BacktestConfig, Status: "running", Started: time.Now()}
	s.mu.Lock()
	s.runs[req.ID] = state
	s.mu.Unlock()

	go s.runAsync(state)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"id": state.ID, "status": "running", "started": state.Started.Unix(),
	})
}

func (s *Server) runAsync(state *RunState) {
	candles, err := s.loader.GetHistoricalCandles(state.Config.Strategy.Symbol, state.Config.Strategy.Timeframe, state.Config.StartDate, state.Config.EndDate)
	if err != nil {
		s.finish(state, nil, err)
		return
	}

	started := time.Now()
	task := &workers.BacktestTask{Orchestrator: s.orchestrator, Config: &state.Config.Strategy, Candles: candles}
	err = s.pool.SubmitWait(task)
	result := task.Result()
	s.finish(state, result, err)

	if s.onRunComplete != nil && err == nil && result != nil {
		exitReasons := make([]string, len(result.Trades))
		for i, t := range result.Trades {
			exitReasons[i] = string(t.ExitReason)
		}
		s.onRunComplete(string(result.TerminationReason), time.Since(started), exitReasons)
	}
}

func (s *Server) finish(state *RunState, result *types.BacktestResult, err error) {
	s.mu.Lock()
	if err != nil {
		state.Status = "failed"
		state.Error = err.Error()
	} else {
		state.Status = "completed"
		state.Result = result
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("backtest run failed", zap.String("id", state.ID), zap.Error(err))
	}

	s.broadcast(&Message{
		ID: uuid.New().String(), Type: "event", Method: "backtest:complete",
		Payload:   map[string]interface{}{"id": state.ID, "status": state.Status, "error": state.Error, "result": state.Result},
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	state, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "backtest not found", http.StatusNotFound)
		return
	}
	resp := map[string]interface{}{"id": state.ID, "status": state.Status, "started": state.Started.Unix()}
	if state.Result != nil {
		resp["result"] = state.Result
	}
	if state.Error != "" {
		resp["error"] = state.Error
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleGetBacktestTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	state, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "backtest not found", http.StatusNotFound)
		return
	}
	if state.Result == nil {
		http.Error(w, "backtest not complete", http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "trades": state.Result.Trades, "count": len(state.Result.Trades)})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{ID: uuid.New().String(), Conn: conn, Send: make(chan []byte, 256), Subs: make(map[string]bool)}
	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()

	go s.readPump(client)
	go s.writePump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		s.mu.Unlock()
		client.Conn.Close()
	}()
	client.Conn.SetReadLimit(512 * 1024)
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, msgBytes, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			continue
		}
		s.handleMessage(client, &msg)
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(client *Client, msg *Message) {
	response := &Message{ID: msg.ID, Type: "response", Method: msg.Method, Timestamp: time.Now().UnixMilli()}

	switch msg.Method {
	case "ping":
		response.Payload = map[string]string{"pong": "ok"}

	case "backtest:status":
		payload, _ := msg.Payload.(map[string]interface{})
		id, _ := payload["id"].(string)
		s.mu.RLock()
		state, ok := s.runs[id]
		s.mu.RUnlock()
		if !ok {
			response.Error = "backtest not found"
		} else {
			response.Payload = map[string]interface{}{"id": state.ID, "status": state.Status}
		}

	case "subscribe":
		payload, _ := msg.Payload.(map[string]interface{})
		channel, _ := payload["channel"].(string)
		client.Subs[channel] = true
		response.Payload = map[string]string{"subscribed": channel}

	case "unsubscribe":
		payload, _ := msg.Payload.(map[string]interface{})
		channel, _ := payload["channel"].(string)
		delete(client.Subs, channel)
		response.Payload = map[string]string{"unsubscribed": channel}

	default:
		response.Error = "unknown method"
	}

	respBytes, _ := json.Marshal(response)
	select {
	case client.Send <- respBytes:
	default:
	}
}

func (s *Server) broadcast(msg *Message) {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.Send <- msgBytes:
		default:
		}
	}
}
