package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tagserver/internal/microservices/tcp"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockServer mocks the ServerInspector interface
type MockServer struct {
	mock.Mock
}

func (m *MockServer) Stats() tcp.Stats {
	args := m.Called()
	return args.Get(0).(tcp.Stats)
}

func (m *MockServer) LoadAverage(ctx context.Context) (tcp.LoadAverage, error) {
	args := m.Called(mock.Anything)
	return args.Get(0).(tcp.LoadAverage), args.Error(1)
}

type fixedPeers int

func (p fixedPeers) PeerCount() int { return int(p) }

func setupRouter(server ServerInspector) *gin.Engine {
	return setupRouterWithPeers(server, nil)
}

func setupRouterWithPeers(server ServerInspector, peers PeerCounter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewOpsHandler(server, peers).RegisterRoutes(&router.RouterGroup)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := setupRouter(new(MockServer))

	w := get(router, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStats(t *testing.T) {
	server := new(MockServer)
	server.On("Stats").Return(tcp.Stats{
		Addr:              "127.0.0.1:4000",
		ActiveConnections: 2,
		TotalConnections:  5,
		MessagesHandled:   42,
	})
	router := setupRouter(server)

	w := get(router, "/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats tcp.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "127.0.0.1:4000", stats.Addr)
	assert.Equal(t, 2, stats.ActiveConnections)
	assert.Equal(t, int64(5), stats.TotalConnections)
	assert.Equal(t, int64(42), stats.MessagesHandled)
	assert.NotContains(t, w.Body.String(), "udp_peers")
	server.AssertExpectations(t)
}

func TestStats_WithUDPPeers(t *testing.T) {
	server := new(MockServer)
	server.On("Stats").Return(tcp.Stats{ActiveConnections: 1})
	router := setupRouterWithPeers(server, fixedPeers(3))

	w := get(router, "/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ActiveConnections)
	require.NotNil(t, stats.UDPPeers)
	assert.Equal(t, 3, *stats.UDPPeers)
}

func TestStats_ZeroUDPPeersIsReported(t *testing.T) {
	server := new(MockServer)
	server.On("Stats").Return(tcp.Stats{})
	router := setupRouterWithPeers(server, fixedPeers(0))

	w := get(router, "/stats")
	assert.Contains(t, w.Body.String(), `"udp_peers":0`)
}

func TestLoadAverage_Success(t *testing.T) {
	server := new(MockServer)
	server.On("LoadAverage", mock.Anything).Return(tcp.LoadAverage{Load1: 1, Load5: 0.5, Load15: 0.25}, nil)
	router := setupRouter(server)

	w := get(router, "/loadavg")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"load1":1,"load5":0.5,"load15":0.25}`, w.Body.String())
}

func TestLoadAverage_Unavailable(t *testing.T) {
	server := new(MockServer)
	server.On("LoadAverage", mock.Anything).Return(tcp.LoadAverage{}, errors.New("not supported"))
	router := setupRouter(server)

	w := get(router, "/loadavg")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response map[string]string
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "not supported", response["error"])
}
