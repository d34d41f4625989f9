package udp

import (
	"net"
	"sync"
	"time"
)

// Peer is a client address the server has heard from recently
type Peer struct {
	Addr     string    `json:"addr"`
	LastSeen time.Time `json:"last_seen"`
	Messages int64     `json:"messages"`
}

// PeerManager remembers recent datagram senders. UDP has no connection
// lifecycle, so a peer expires once it has been quiet for timeout.
type PeerManager struct {
	mu      sync.RWMutex
	peers   map[string]*Peer // addr -> Peer
	timeout time.Duration
}

// NewPeerManager creates a new peer manager
func NewPeerManager(timeout time.Duration) *PeerManager {
	return &PeerManager{
		peers:   make(map[string]*Peer),
		timeout: timeout,
	}
}

// Touch records one message from addr
func (pm *PeerManager) Touch(addr *net.UDPAddr) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	key := addr.String()
	peer, exists := pm.peers[key]
	if !exists {
		peer = &Peer{Addr: key}
		pm.peers[key] = peer
	}
	peer.LastSeen = time.Now()
	peer.Messages++
}

// Get returns a copy of the peer for addr
func (pm *PeerManager) Get(addr string) (Peer, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	peer, exists := pm.peers[addr]
	if !exists {
		return Peer{}, false
	}
	return *peer, true
}

// CleanupInactive removes peers quiet for longer than the timeout
func (pm *PeerManager) CleanupInactive() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := time.Now()
	for key, peer := range pm.peers {
		if now.Sub(peer.LastSeen) > pm.timeout {
			delete(pm.peers, key)
		}
	}
}

// Count returns the number of known peers
func (pm *PeerManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return len(pm.peers)
}

// StartCleanupRoutine periodically drops inactive peers until done is closed
func (pm *PeerManager) StartCleanupRoutine(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.CleanupInactive()
		case <-done:
			return
		}
	}
}
