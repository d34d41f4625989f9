package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"tagserver/internal/metrics"
)

// ErrServerClosed is returned by Serve or Start when called after Stop.
// Stopping a server that is already serving makes Serve return nil.
var ErrServerClosed = errors.New("tcp: server closed")

// ServerConfig tunes a TCPServer. The zero value serves with the reference
// behavior plus a 5 minute idle timeout.
type ServerConfig struct {
	MaxMessageSize int
	IdleTimeout    time.Duration // < 0 disables the read deadline
	MaxConnections int           // 0 = unbounded
	RateLimit      float64       // messages per second per connection, 0 = off
	RateBurst      int
	LoadAverager   LoadAverager
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// Stats is a point in time summary of the server
type Stats struct {
	Addr              string           `json:"addr"`
	StartedAt         time.Time        `json:"started_at"`
	Uptime            string           `json:"uptime"`
	ActiveConnections int              `json:"active_connections"`
	TotalConnections  int64            `json:"total_connections"`
	MessagesHandled   int64            `json:"messages_handled"`
	MaxConnections    int              `json:"max_connections"`
	Connections       []ConnectionInfo `json:"connections"`
}

type TCPServer struct {
	Addr string
	// server address used by Start
	Manager *ConnectionManager
	// tracks live connections for stats and shutdown
	connCfg        ConnectionConfig
	logger         *slog.Logger
	metrics        *metrics.Metrics
	sem            *semaphore.Weighted // nil when MaxConnections is 0
	maxConnections int

	ctx    context.Context
	cancel context.CancelFunc
	// cancelled by Stop, unblocks semaphore waits and in-flight load queries
	wg sync.WaitGroup
	// accept loop plus one goroutine per connection

	mu        sync.Mutex
	listener  net.Listener
	closed    bool
	startedAt time.Time
	accepted  atomic.Int64
}

// constructor for Server
func NewServer(addr string, cfg ServerConfig) *TCPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &TCPServer{
		Addr:    addr,
		Manager: NewConnectionManager(logger),
		connCfg: ConnectionConfig{
			Executor:       NewExecutor(cfg.LoadAverager, logger),
			Logger:         logger,
			Metrics:        cfg.Metrics,
			MaxMessageSize: cfg.MaxMessageSize,
			IdleTimeout:    cfg.IdleTimeout,
			RateLimit:      cfg.RateLimit,
			RateBurst:      cfg.RateBurst,
		},
		logger:         logger,
		metrics:        cfg.Metrics,
		maxConnections: cfg.MaxConnections,
		ctx:            ctx,
		cancel:         cancel,
	}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	return s
}

// Start listens on s.Addr and serves until Stop or an accept failure
func (s *TCPServer) Start() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server, error: %w", err)
	}
	return s.Serve(listener)
}

// Serve accepts connections from listener and hands each one to its own
// goroutine without waiting for it. An accept failure is fatal and returned;
// after Stop, Serve returns nil. The listener is closed when Serve returns.
func (s *TCPServer) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return ErrServerClosed
	}
	s.listener = listener
	s.startedAt = time.Now()
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	defer listener.Close()

	s.logger.Info("tcp_server_started",
		"addr", listener.Addr().String(),
		"max_connections", s.maxConnections,
	)

	for {
		if s.sem != nil {
			// wait for a free handler slot before taking the next client
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return nil
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if s.sem != nil {
				s.sem.Release(1)
			}
			if s.isClosed() {
				return nil // Stop closed the listener
			}
			s.logger.Error("accept_failed",
				"error", err.Error(),
			)
			return fmt.Errorf("failed to accept connection: %w", err)
		}
		s.accepted.Add(1)

		s.wg.Add(1)
		go func(conn net.Conn) {
			defer s.wg.Done()
			if s.sem != nil {
				defer s.sem.Release(1)
			}
			s.handleConnection(conn)
		}(conn)
	}
}

// handle connections/lifecycle of single client connection
func (s *TCPServer) handleConnection(conn net.Conn) {
	client := NewClientConnection(conn, s.connCfg)
	s.Manager.AddConnection(client)
	s.metrics.ConnectionOpened()
	defer func() {
		s.Manager.RemoveConnection(client)
		s.metrics.ConnectionClosed()
	}()

	// Stop may have run CloseAllConnections before we registered
	if s.ctx.Err() != nil {
		client.Close()
		return
	}
	client.Listen(s.ctx)
}

func (s *TCPServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stop closes the listener and every live connection, then waits for all
// handler goroutines to return
func (s *TCPServer) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	s.cancel()
	if listener != nil {
		listener.Close()
	}
	s.Manager.CloseAllConnections()
	s.wg.Wait()
	s.logger.Info("tcp_server_stopped",
		"total_connections", s.accepted.Load(),
		"messages_handled", s.Manager.TotalMessages(),
	)
}

// ListenAddr returns the bound address once Serve has started, s.Addr before
func (s *TCPServer) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.Addr
}

// Stats returns server statistics
func (s *TCPServer) Stats() Stats {
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()

	var uptime time.Duration
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt).Truncate(time.Second)
	}
	return Stats{
		Addr:              s.ListenAddr(),
		StartedAt:         startedAt,
		Uptime:            uptime.String(),
		ActiveConnections: s.Manager.Count(),
		TotalConnections:  s.accepted.Load(),
		MessagesHandled:   s.Manager.TotalMessages(),
		MaxConnections:    s.maxConnections,
		Connections:       s.Manager.Snapshot(),
	}
}

// Executor returns the executor shared by every connection
func (s *TCPServer) Executor() *Executor {
	return s.connCfg.Executor
}

// LoadAverage exposes the executor's load source to other frontends
func (s *TCPServer) LoadAverage(ctx context.Context) (LoadAverage, error) {
	return s.connCfg.Executor.loadAvg.LoadAverage(ctx)
}
