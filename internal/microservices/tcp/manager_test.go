package tcp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManagedClient(t *testing.T) (*ClientConnection, net.Conn) {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() { peer.Close() })
	return NewClientConnection(server, ConnectionConfig{}), peer
}

func TestConnectionManager_AddRemove(t *testing.T) {
	m := NewConnectionManager(nil)
	a, _ := newManagedClient(t)
	b, _ := newManagedClient(t)

	m.AddConnection(a)
	m.AddConnection(b)
	assert.Equal(t, 2, m.Count())

	a.messages.Add(3)
	m.RemoveConnection(a)
	m.RemoveConnection(a) // second removal is a no-op
	assert.Equal(t, 1, m.Count())

	b.messages.Add(2)
	assert.Equal(t, int64(5), m.TotalMessages(), "retired plus live")
}

func TestConnectionManager_SnapshotOrder(t *testing.T) {
	m := NewConnectionManager(nil)
	older, _ := newManagedClient(t)
	newer, _ := newManagedClient(t)
	older.ConnectedAt = time.Now().Add(-time.Minute)

	m.AddConnection(newer)
	m.AddConnection(older)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, older.ID, snap[0].ID)
	assert.Equal(t, newer.ID, snap[1].ID)
}

func TestConnectionManager_CloseAllConnections(t *testing.T) {
	m := NewConnectionManager(nil)
	client, peer := newManagedClient(t)
	m.AddConnection(client)

	m.CloseAllConnections()

	_, err := peer.Write([]byte("x"))
	assert.Error(t, err, "pipe is closed from the server side")
}
