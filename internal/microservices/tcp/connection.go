package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tagserver/internal/metrics"
)

// the reference protocol sizes every message to fit one 256 byte read
const DefaultMaxMessageSize = 256

// a client that sends nothing for this long is disconnected
const DefaultIdleTimeout = 5 * time.Minute

// ConnectionConfig is shared by every ClientConnection a server creates.
// Zero values fall back to the defaults above; IdleTimeout < 0 disables the
// read deadline and RateLimit <= 0 disables rate limiting.
type ConnectionConfig struct {
	Executor       *Executor
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	MaxMessageSize int
	IdleTimeout    time.Duration
	RateLimit      float64 // messages per second
	RateBurst      int
}

type ClientConnection struct {
	ID          string // unique identifier = key in manager map
	RemoteAddr  string
	ConnectedAt time.Time
	conn        net.Conn
	buffer      []byte        // fixed size receive buffer, cleared before every read
	Limiter     *rate.Limiter // nil when rate limiting is off
	executor    *Executor
	logger      *slog.Logger
	metrics     *metrics.Metrics
	idleTimeout time.Duration
	messages    atomic.Int64
	closeOnce   sync.Once
}

// constructor for Connection
func NewClientConnection(conn net.Conn, cfg ConnectionConfig) *ClientConnection {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Executor == nil {
		cfg.Executor = NewExecutor(nil, cfg.Logger)
	}

	remote := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	c := &ClientConnection{
		ID:          uuid.NewString(),
		RemoteAddr:  remote,
		ConnectedAt: time.Now(),
		conn:        conn,
		buffer:      make([]byte, cfg.MaxMessageSize),
		executor:    cfg.Executor,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		idleTimeout: cfg.IdleTimeout,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		// the limiter auto depletes tokens when Allow is called and refills over time
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// Listen runs the read loop until the client disconnects, the read fails or
// ctx is cancelled and the connection closed underneath it. Every message
// gets exactly one reply before the next read.
func (c *ClientConnection) Listen(ctx context.Context) {
	defer c.Close()

	c.logger.Info("client_started_listening",
		"client_id", c.ID,
		"remote_addr", c.RemoteAddr,
	)

	for {
		clear(c.buffer) // a short read must not see the previous message

		if c.idleTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
				c.logger.Warn("set_read_deadline_failed",
					"client_id", c.ID,
					"error", err.Error(),
				)
			}
		}

		n, err := c.conn.Read(c.buffer)
		if n > 0 {
			c.handleMessage(ctx, c.buffer[:n])
		}
		if err != nil {
			c.logReadExit(err)
			return
		}
		if n <= 0 {
			c.logger.Info("client_disconnected",
				"client_id", c.ID,
			)
			return
		}
	}
}

func (c *ClientConnection) handleMessage(ctx context.Context, raw []byte) {
	message := TrimMessage(raw)
	c.logger.Debug("message_received",
		"client_id", c.ID,
		"remote_addr", c.RemoteAddr,
		"message", message,
	)
	c.metrics.MessageReceived()

	var reply string
	if c.Limiter != nil && !c.Limiter.Allow() { // returns true if a token is available then consumes it
		c.logger.Warn("rate_limit_exceeded",
			"client_id", c.ID,
		)
		c.metrics.RateLimitHit()
		reply = ReplyRateLimited
	} else {
		start := time.Now()
		cmd := Classify(message)
		reply = c.executor.Execute(ctx, cmd)
		c.metrics.ObserveCommand(cmd.Kind.String(), time.Since(start))
	}
	c.messages.Add(1)

	// a failed write is not fatal here, the next read reports a broken transport
	if err := c.Send(reply); err != nil {
		c.logger.Warn("reply_send_failed",
			"client_id", c.ID,
			"error", err.Error(),
		)
		c.metrics.SendFailed()
		return
	}
	c.logger.Debug("reply_sent",
		"client_id", c.ID,
		"remote_addr", c.RemoteAddr,
		"reply", reply,
	)
}

// logReadExit reports why the read loop is ending
func (c *ClientConnection) logReadExit(err error) {
	if errors.Is(err, io.EOF) { // check for client disconnection or EOF signal
		c.logger.Info("client_disconnected",
			"client_id", c.ID,
		)
		return
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		c.logger.Warn("client_read_timeout",
			"client_id", c.ID,
			"idle_timeout", c.idleTimeout.String(),
		)
		c.metrics.ReadTimedOut()
		return
	}
	// closed underneath us by Stop or CloseAllConnections
	if errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		strings.Contains(err.Error(), "closed network connection") {
		c.logger.Debug("client_connection_closed",
			"client_id", c.ID,
		)
		return
	}
	c.logger.Error("client_read_error",
		"client_id", c.ID,
		"error", err.Error(),
	)
}

// Send writes one reply to the client
func (c *ClientConnection) Send(reply string) error {
	if c.idleTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if _, err := io.WriteString(c.conn, reply); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}

// Messages returns how many messages this connection has answered
func (c *ClientConnection) Messages() int64 {
	return c.messages.Load()
}

// Close releases the transport handle, safe to call more than once
func (c *ClientConnection) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		c.logger.Info("client_closed",
			"client_id", c.ID,
			"messages", c.messages.Load(),
		)
	})
}
