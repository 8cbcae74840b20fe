// Package feed is a reference push server. It exposes a readiness endpoint
// and a WebSocket that broadcasts every sample produced by a Source as a
// data-update frame.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chosenoffset/livechart/pkg/livechart/metrics"
	"github.com/chosenoffset/livechart/pkg/livechart/sample"
	"github.com/chosenoffset/livechart/pkg/livechart/series"
	"github.com/chosenoffset/livechart/pkg/livechart/stream"
)

const (
	defaultMaxClients = 100
	defaultHistory    = 50

	pingPeriod   = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendQueue    = 16
)

// Config configures a Server.
type Config struct {
	Addr       string
	Source     Source
	MaxClients int
	// History is the number of recent samples returned by the readiness
	// endpoint.
	History int

	Logger      *zap.Logger
	HTTPMetrics *metrics.HTTPMetrics
	// Gatherer, if set, is served at /debug/metrics.
	Gatherer prometheus.Gatherer
}

// client is one WebSocket subscriber. Only its writer goroutine touches conn
// for data frames.
type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Server broadcasts samples to WebSocket clients.
type Server struct {
	cfg      Config
	l        *zap.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	serverMu sync.Mutex
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}

	hubOnce  sync.Once
	hubReady chan struct{}
	samples  chan sample.Sample
	wg       sync.WaitGroup

	clientsMutex sync.RWMutex
	clients      map[uuid.UUID]*client
	// pending counts slots reserved by upgrades in progress.
	pending int

	mutex  sync.RWMutex
	recent *series.Buffer

	stopOnce sync.Once
}

// NewServer returns a server whose hub starts on the first readiness probe.
func NewServer(cfg Config) *Server {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	if cfg.History <= 0 {
		cfg.History = defaultHistory
	}
	if cfg.Source == nil {
		cfg.Source = &RandomSource{}
	}
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg: cfg,
		l:   l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the chart client may be served from another origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:      ctx,
		cancel:   cancel,
		stop:     make(chan struct{}),
		hubReady: make(chan struct{}),
		samples:  make(chan sample.Sample, 100),
		clients:  make(map[uuid.UUID]*client),
		recent:   series.NewWindow(cfg.History),
	}

	r := mux.NewRouter()
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}
	r.HandleFunc(stream.ProbePath, s.handleChartData).Methods("GET")
	r.HandleFunc(stream.StreamPath, s.handleWebSocket).Methods("GET")
	if cfg.Gatherer != nil {
		r.Handle("/debug/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	s.router = r

	return s
}

// Handler returns the HTTP handler with access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	access := zap.NewStdLog(s.l.Named("http")).Writer()
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.l.Named("recovery"))),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(handlers.LoggingHandler(access, s.router))
}

// Start listens on Config.Addr and blocks until Stop.
func (s *Server) Start() error {
	s.serverMu.Lock()
	select {
	case <-s.stop:
		s.serverMu.Unlock()
		return nil
	default:
	}
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server = srv
	s.serverMu.Unlock()

	s.l.Info("Starting feed", zap.String("addr", s.cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes every client with a normal close frame, stops the source and
// shuts the HTTP server down. It is safe to call repeatedly.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.serverMu.Lock()
		s.cancel()
		close(s.stop)
		srv := s.server
		s.serverMu.Unlock()

		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = srv.Shutdown(ctx)
		}
		s.wg.Wait()
	})
	return err
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

// Recent returns the most recent samples in order.
func (s *Server) Recent() []sample.Sample {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.recent.Samples()
}

// ensureHub starts the source and the broadcaster exactly once.
func (s *Server) ensureHub() {
	s.hubOnce.Do(func() {
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			if err := s.cfg.Source.Run(s.ctx, s.samples); err != nil && !errors.Is(err, context.Canceled) {
				s.l.Error("Sample source stopped", zap.Error(err))
			}
		}()
		go func() {
			defer s.wg.Done()
			s.broadcast()
		}()
		close(s.hubReady)
		s.l.Info("Push hub initialized")
	})
}

func (s *Server) hubInitialized() bool {
	select {
	case <-s.hubReady:
		return true
	default:
		return false
	}
}

func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	s.ensureHub()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"data": map[string]any{
			"clients": s.Clients(),
			"recent":  s.Recent(),
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.hubInitialized() {
		http.Error(w, "Push hub not initialized", http.StatusServiceUnavailable)
		return
	}

	// Reserve a slot before upgrading
	if !s.reserve() {
		http.Error(w, "Maximum clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release(nil)
		s.l.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, sendQueue)}
	s.release(c)

	s.l.Info("Client connected", zap.Stringer("client", c.id), zap.String("remote", r.RemoteAddr))

	// reading is required to process pongs and detect disconnects
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.l.Debug("WebSocket read error", zap.Stringer("client", c.id), zap.Error(err))
				}
				return
			}
		}
	}()

	defer func() {
		conn.Close()
		<-readDone
		s.l.Info("Client disconnected", zap.Stringer("client", c.id))

		s.clientsMutex.Lock()
		delete(s.clients, c.id)
		s.clientsMutex.Unlock()
	}()

	s.writeLoop(c, readDone)
}

// reserve claims a client slot, counting upgrades still in progress.
func (s *Server) reserve() bool {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	if len(s.clients)+s.pending >= s.cfg.MaxClients {
		return false
	}
	s.pending++
	return true
}

// release turns a reserved slot into c, or frees it if c is nil.
func (s *Server) release(c *client) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	s.pending--
	if c != nil {
		s.clients[c.id] = c
	}
}

// writeLoop owns all writes to c.conn.
func (s *Server) writeLoop(c *client, readDone <-chan struct{}) {
	connect, _ := json.Marshal(stream.Envelope{Type: stream.EventConnect})
	if err := s.write(c.conn, websocket.TextMessage, connect); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				// dropped as too slow
				_ = s.write(c.conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"))
				return
			}
			if err := s.write(c.conn, websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.write(c.conn, websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-s.stop:
			_ = s.write(c.conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, messageType int, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(messageType, data)
}

func (s *Server) broadcast() {
	for {
		select {
		case smp := <-s.samples:
			s.mutex.Lock()
			s.recent.Append(smp)
			s.mutex.Unlock()

			data, err := Marshal(stream.EventDataUpdate, smp)
			if err != nil {
				s.l.Error("Error marshaling sample", zap.Error(err))
				continue
			}
			s.broadcastMessage(data)

		case <-s.stop:
			return
		}
	}
}

// broadcastMessage queues data for every client. A client whose queue is full
// is dropped.
func (s *Server) broadcastMessage(data []byte) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()

	for id, c := range s.clients {
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(s.clients, id)
			s.l.Warn("Dropping slow client", zap.Stringer("client", id))
		}
	}
}

// Marshal encodes a server frame carrying s.
func Marshal(event stream.Event, s sample.Sample) ([]byte, error) {
	data, err := sample.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stream.Envelope{Type: event, Data: data})
}
