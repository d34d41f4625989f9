package client

// udp_client.go = datagram client for the tag server's UDP frontend.

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// UDPClient sends one datagram per request and waits for the reply
type UDPClient struct {
	serverAddr string
	timeout    time.Duration
	conn       *net.UDPConn
	connected  bool
	mu         sync.Mutex
	stats      UDPStats
}

// UDPStats holds UDP client statistics
type UDPStats struct {
	ConnectedAt      time.Time
	MessagesSent     int
	MessagesReceived int
	LastReply        time.Time
}

// NewUDPClient creates a new UDP client; timeout bounds each reply wait
func NewUDPClient(serverAddr string, timeout time.Duration) *UDPClient {
	return &UDPClient{
		serverAddr: serverAddr,
		timeout:    timeout,
	}
}

// Connect resolves the server and binds a local socket to it
func (c *UDPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", c.serverAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to UDP server: %w", err)
	}

	c.conn = conn.(*net.UDPConn)
	c.connected = true
	c.stats = UDPStats{ConnectedAt: time.Now()}
	return nil
}

// Request sends request as a single datagram and returns the reply
func (c *UDPClient) Request(request string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return "", ErrNotConnected
	}
	if request == "" {
		return "", ErrEmptyRequest
	}
	if len(request) > MaxMessage {
		return "", ErrTooLarge
	}

	if _, err := c.conn.Write([]byte(request)); err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	c.stats.MessagesSent++

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

// Disconnect closes the socket
func (c *UDPClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	return c.conn.Close()
}

// GetStats returns client statistics
func (c *UDPClient) GetStats() UDPStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
