// Package udp serves the tag protocol over datagrams: each datagram is one
// message and the reply goes back to the sender address.
package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"tagserver/internal/microservices/tcp"
)

// peers quiet for this long are forgotten
const DefaultPeerTimeout = 5 * time.Minute

// Server represents the UDP tag server
type Server struct {
	conn           *net.UDPConn
	executor       *tcp.Executor
	peers          *PeerManager
	logger         *slog.Logger
	maxMessageSize int
	done           chan struct{}
	closeOnce      sync.Once
	wg             sync.WaitGroup
}

// NewServer binds addr ("host:port", port 0 for ephemeral). executor and
// logger may be nil.
func NewServer(addr string, executor *tcp.Executor, maxMessageSize int, logger *slog.Logger) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		executor = tcp.NewExecutor(nil, logger)
	}
	if maxMessageSize <= 0 {
		maxMessageSize = tcp.DefaultMaxMessageSize
	}

	s := &Server{
		conn:           conn,
		executor:       executor,
		peers:          NewPeerManager(DefaultPeerTimeout),
		logger:         logger,
		maxMessageSize: maxMessageSize,
		done:           make(chan struct{}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.peers.StartCleanupRoutine(1*time.Minute, s.done)
	}()
	return s, nil
}

// Addr returns the bound address
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Serve reads datagrams until Shutdown. Datagrams are answered in arrival
// order so a peer sees its replies in the order it sent the requests.
func (s *Server) Serve() error {
	s.logger.Info("udp_server_started", "addr", s.conn.LocalAddr().String())

	buffer := make([]byte, s.maxMessageSize)
	for {
		clear(buffer)
		n, addr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("udp_read_error", "error", err.Error())
			continue
		}
		s.processMessage(buffer[:n], addr)
	}
}

// processMessage answers one datagram
func (s *Server) processMessage(data []byte, addr *net.UDPAddr) {
	s.peers.Touch(addr)

	message := tcp.TrimMessage(data)
	reply := s.executor.Execute(context.Background(), tcp.Classify(message))
	s.logger.Debug("udp_message_handled",
		"remote_addr", addr.String(),
		"message", message,
		"reply", reply,
	)

	if _, err := s.conn.WriteToUDP([]byte(reply), addr); err != nil {
		s.logger.Warn("udp_reply_send_failed",
			"remote_addr", addr.String(),
			"error", err.Error(),
		)
	}
}

// Shutdown stops Serve and the peer cleanup routine
func (s *Server) Shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.wg.Wait()
		s.logger.Info("udp_server_stopped", "peers", s.peers.Count())
	})
	return err
}

// PeerCount returns the number of recently active peers
func (s *Server) PeerCount() int {
	return s.peers.Count()
}
