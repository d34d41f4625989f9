package udp

import (
	"net"
	"testing"
	"time"
)

func TestPeerManager_Touch(t *testing.T) {
	pm := NewPeerManager(5 * time.Minute)

	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:12345")

	pm.Touch(addr)
	pm.Touch(addr)

	if pm.Count() != 1 {
		t.Errorf("Expected 1 peer, got %d", pm.Count())
	}

	peer, exists := pm.Get("127.0.0.1:12345")
	if !exists {
		t.Fatal("Expected peer to exist")
	}
	if peer.Messages != 2 {
		t.Errorf("Expected 2 messages, got %d", peer.Messages)
	}
}

func TestPeerManager_CleanupInactive(t *testing.T) {
	pm := NewPeerManager(50 * time.Millisecond)

	addr1, _ := net.ResolveUDPAddr("udp", "127.0.0.1:12345")
	addr2, _ := net.ResolveUDPAddr("udp", "127.0.0.1:12346")

	pm.Touch(addr1)
	time.Sleep(100 * time.Millisecond)
	pm.Touch(addr2)

	pm.CleanupInactive()

	if pm.Count() != 1 {
		t.Errorf("Expected 1 peer after cleanup, got %d", pm.Count())
	}
	if _, exists := pm.Get("127.0.0.1:12345"); exists {
		t.Error("Expected stale peer to be removed")
	}
}

func TestPeerManager_CleanupRoutineStops(t *testing.T) {
	pm := NewPeerManager(time.Minute)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		pm.StartCleanupRoutine(10*time.Millisecond, done)
		close(finished)
	}()

	close(done)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("cleanup routine did not stop")
	}
}
