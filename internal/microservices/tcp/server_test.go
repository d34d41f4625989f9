package tcp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// TCPServerTestSuite runs a real server on a loopback ephemeral port
type TCPServerTestSuite struct {
	suite.Suite
	server  *TCPServer
	addr    string
	serveCh chan error
}

func (s *TCPServerTestSuite) SetupTest() {
	s.startServer(ServerConfig{LoadAverager: fakeLoadAverager{avg: testLoad}})
}

func (s *TCPServerTestSuite) startServer(cfg ServerConfig) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)

	s.server = NewServer(listener.Addr().String(), cfg)
	s.addr = listener.Addr().String()
	s.serveCh = make(chan error, 1)
	go func() {
		s.serveCh <- s.server.Serve(listener)
	}()
	s.Eventually(func() bool {
		return !s.server.Stats().StartedAt.IsZero()
	}, 2*time.Second, 5*time.Millisecond, "Serve did not start")
}

func (s *TCPServerTestSuite) TearDownTest() {
	s.server.Stop()
	select {
	case err := <-s.serveCh:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("Serve did not return after Stop")
	}
}

func (s *TCPServerTestSuite) dial() net.Conn {
	conn, err := net.DialTimeout("tcp", s.addr, 2*time.Second)
	s.Require().NoError(err)
	return conn
}

func (s *TCPServerTestSuite) TestRoundTrip() {
	t := s.T()
	conn := s.dial()
	defer conn.Close()

	assert.Equal(t, "<reply>HelloWorld</reply>", roundTrip(t, conn, "<echo>HelloWorld</echo>"))
	assert.Equal(t, ReplyUnknownFormat, roundTrip(t, conn, "\n"))
	assert.Equal(t, ReplyUnknownFormat, roundTrip(t, conn, "<echo> Hello World <echo>"))
	assert.Equal(t, "<replyLoadAvg>0.250000:0.500000:0.750000</replyLoadAvg>", roundTrip(t, conn, "<loadavg/>"))
	assert.Equal(t, "<reply></reply>", roundTrip(t, conn, "<echo></echo>"))
}

func (s *TCPServerTestSuite) TestConcurrentClientsDoNotCrossTalk() {
	t := s.T()
	const clients = 8
	const rounds = 25

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", s.addr, 2*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()

			payload := fmt.Sprintf("client-%d", id)
			buf := make([]byte, DefaultMaxMessageSize)
			for r := 0; r < rounds; r++ {
				conn.SetDeadline(time.Now().Add(2 * time.Second))
				if _, err := conn.Write([]byte("<echo>" + payload + "</echo>")); !assert.NoError(t, err) {
					return
				}
				n, err := conn.Read(buf)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, "<reply>"+payload+"</reply>", string(buf[:n]))
			}
		}(i)
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return s.server.Stats().MessagesHandled == clients*rounds
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *TCPServerTestSuite) TestStats() {
	t := s.T()
	conn := s.dial()
	defer conn.Close()

	roundTrip(t, conn, "<echo>a</echo>")
	roundTrip(t, conn, "<echo>b</echo>")

	stats := s.server.Stats()
	assert.Equal(t, s.addr, stats.Addr)
	assert.Equal(t, 1, stats.ActiveConnections)
	assert.Equal(t, int64(1), stats.TotalConnections)
	assert.Equal(t, int64(2), stats.MessagesHandled)
	require.Len(t, stats.Connections, 1)
	assert.Equal(t, int64(2), stats.Connections[0].Messages)
	assert.Equal(t, conn.LocalAddr().String(), stats.Connections[0].RemoteAddr)

	conn.Close()
	assert.Eventually(t, func() bool {
		return s.server.Manager.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), s.server.Stats().MessagesHandled, "closed connections keep their totals")
}

func (s *TCPServerTestSuite) TestStopClosesLiveConnections() {
	t := s.T()
	conn := s.dial()
	defer conn.Close()
	roundTrip(t, conn, "<echo>a</echo>")

	s.server.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Read(make([]byte, 16))
	assert.Error(t, err, "server side should be closed")
	assert.Equal(t, 0, s.server.Manager.Count())
}

func (s *TCPServerTestSuite) TestServeAfterStop() {
	s.server.Stop()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.ErrorIs(s.server.Serve(listener), ErrServerClosed)
}

func (s *TCPServerTestSuite) TestStopWhileServingReturnsNil() {
	conn := s.dial()
	defer conn.Close()

	s.server.Stop()
	select {
	case err := <-s.serveCh:
		s.NoError(err)
		s.serveCh <- err // TearDownTest reads it again
	case <-time.After(2 * time.Second):
		s.Fail("Serve did not return after Stop")
	}
}

func (s *TCPServerTestSuite) TestMaxConnections() {
	t := s.T()
	s.server.Stop()
	<-s.serveCh
	s.startServer(ServerConfig{MaxConnections: 1, LoadAverager: fakeLoadAverager{avg: testLoad}})

	first := s.dial()
	defer first.Close()
	assert.Equal(t, "<reply>1</reply>", roundTrip(t, first, "<echo>1</echo>"))

	// the kernel completes the handshake but nobody serves the second client yet
	second := s.dial()
	defer second.Close()
	_, err := second.Write([]byte("<echo>2</echo>"))
	require.NoError(t, err)
	second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = second.Read(make([]byte, 64))
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected a timeout, got %v", err)

	first.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := second.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "<reply>2</reply>", string(buf[:n]))
}

func TestTCPServerSuite(t *testing.T) {
	suite.Run(t, new(TCPServerTestSuite))
}

// brokenListener fails every Accept
type brokenListener struct {
	net.Listener
}

func (brokenListener) Accept() (net.Conn, error) {
	return nil, errors.New("too many open files")
}

func TestServe_AcceptFailureIsFatal(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(listener.Addr().String(), ServerConfig{})
	err = server.Serve(brokenListener{Listener: listener})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to accept connection")
	assert.Contains(t, err.Error(), "too many open files")

	server.Stop()
}

func TestStart_ListenFailure(t *testing.T) {
	server := NewServer("256.0.0.1:-1", ServerConfig{})
	err := server.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start TCP server")
}

func TestNewServer_NegativeIdleTimeoutDisablesDeadline(t *testing.T) {
	server := NewServer("127.0.0.1:0", ServerConfig{IdleTimeout: -3 * time.Second})

	conn, peer := net.Pipe()
	defer peer.Close()
	c := NewClientConnection(conn, server.connCfg)
	defer c.Close()
	assert.Negative(t, c.idleTimeout)

	server = NewServer("127.0.0.1:0", ServerConfig{})
	c = NewClientConnection(conn, server.connCfg)
	assert.Equal(t, DefaultIdleTimeout, c.idleTimeout)
}

func TestStop_BeforeServe(t *testing.T) {
	server := NewServer("127.0.0.1:0", ServerConfig{})
	server.Stop()
	assert.ErrorIs(t, server.Start(), ErrServerClosed)
}
