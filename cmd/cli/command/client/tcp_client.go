package client

// tcp_client.go = request/response client for the tag server.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// MaxMessage bounds requests, matching the server buffer
const MaxMessage = 256

// MaxReply is the longest reply a MaxMessage request can produce: an echo
// swaps <echo></echo> for the two bytes longer <reply></reply>
const MaxReply = MaxMessage + len("<reply></reply>") - len("<echo></echo>")

var (
	ErrEmptyRequest = errors.New("cannot send an empty message to the server")
	ErrNotConnected = errors.New("not connected")
	ErrTooLarge     = fmt.Errorf("request exceeds %d bytes", MaxMessage)
)

// TCPClient talks to the tag server one request at a time
type TCPClient struct {
	serverAddr string
	timeout    time.Duration
	conn       net.Conn
	connected  bool
	stats      ConnectionStats
	mu         sync.Mutex
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	Uptime           time.Duration
	MessagesSent     int
	MessagesReceived int
	ConnectedAt      time.Time
	LastReply        time.Time
}

// NewTCPClient creates a new TCP client; timeout bounds dialing and each
// send or receive, 0 means no deadline
func NewTCPClient(serverAddr string, timeout time.Duration) *TCPClient {
	return &TCPClient{
		serverAddr: serverAddr,
		timeout:    timeout,
	}
}

// Connect establishes connection to TCP server
func (c *TCPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.serverAddr)
	if err != nil {
		return fmt.Errorf("cannot connect to the server: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.stats = ConnectionStats{ConnectedAt: time.Now()}
	return nil
}

// Send writes one request without waiting for the reply
func (c *TCPClient) Send(request string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(request)
}

// Receive reads one reply from the server
func (c *TCPClient) Receive() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receive()
}

// Request sends request and waits for its reply. Holding the lock across
// both halves keeps concurrent callers from interleaving on one connection.
func (c *TCPClient) Request(request string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(request); err != nil {
		return "", err
	}
	return c.receive()
}

func (c *TCPClient) send(request string) error {
	if !c.connected {
		return ErrNotConnected
	}
	if request == "" {
		return ErrEmptyRequest
	}
	if len(request) > MaxMessage {
		return ErrTooLarge
	}

	if c.timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.conn.Write([]byte(request)); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	c.stats.MessagesSent++
	return nil
}

func (c *TCPClient) receive() (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}

	if c.timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	buf := make([]byte, MaxReply)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("failed to receive response: %w", err)
	}
	c.stats.MessagesReceived++
	c.stats.LastReply = time.Now()
	return string(buf[:n]), nil
}

// Disconnect closes the connection
func (c *TCPClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// IsConnected returns connection status
func (c *TCPClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// GetStats returns connection statistics
func (c *TCPClient) GetStats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	if c.connected {
		stats.Uptime = time.Since(c.stats.ConnectedAt)
	}
	return stats
}
