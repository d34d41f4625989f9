package handler

import (
	"context"
	"net/http"
	"time"

	"tagserver/internal/microservices/tcp"

	"github.com/gin-gonic/gin"
)

// ServerInspector is the read-only view of the TCP server the ops API needs
type ServerInspector interface {
	Stats() tcp.Stats
	LoadAverage(ctx context.Context) (tcp.LoadAverage, error)
}

// PeerCounter reports how many UDP peers were heard from recently
type PeerCounter interface {
	PeerCount() int
}

// StatsResponse is the /stats body; udp_peers is omitted when the UDP
// frontend is off
type StatsResponse struct {
	tcp.Stats
	UDPPeers *int `json:"udp_peers,omitempty"`
}

type OpsHandler struct {
	server ServerInspector
	peers  PeerCounter
}

// peers may be nil
func NewOpsHandler(server ServerInspector, peers PeerCounter) *OpsHandler {
	return &OpsHandler{server: server, peers: peers}
}

func (h *OpsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/healthz", h.Health)
	rg.GET("/stats", h.Stats)
	rg.GET("/loadavg", h.LoadAverage)
}

// Health handles GET /healthz
func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats handles GET /stats
func (h *OpsHandler) Stats(c *gin.Context) {
	response := StatsResponse{Stats: h.server.Stats()}
	if h.peers != nil {
		count := h.peers.PeerCount()
		response.UDPPeers = &count
	}
	c.JSON(http.StatusOK, response)
}

// LoadAverage handles GET /loadavg, using the same source as <loadavg/>
func (h *OpsHandler) LoadAverage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	avg, err := h.server.LoadAverage(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, avg)
}
