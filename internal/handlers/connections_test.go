package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionManager_RegisterAndList(t *testing.T) {
	m := NewConnectionManager(time.Minute, testLogger())

	id := m.Register("10.0.0.1:1234", "what is zerorag", func() {})
	require.NotEmpty(t, id)
	assert.Equal(t, 1, m.Count())

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "10.0.0.1:1234", list[0].RemoteAddr)
	assert.Equal(t, "what is zerorag", list[0].Query)
	assert.Zero(t, list[0].EventsSent)
}

func TestConnectionManager_Touch(t *testing.T) {
	m := NewConnectionManager(time.Minute, testLogger())
	id := m.Register("10.0.0.1:1234", "q", func() {})

	before := m.List()[0].LastActivity
	time.Sleep(5 * time.Millisecond)
	m.Touch(id)
	m.Touch(id)

	conn := m.List()[0]
	assert.Equal(t, int64(2), conn.EventsSent)
	assert.True(t, conn.LastActivity.After(before))
}

func TestConnectionManager_Close(t *testing.T) {
	m := NewConnectionManager(time.Minute, testLogger())

	cancelled := false
	id := m.Register("10.0.0.1:1234", "q", func() { cancelled = true })

	require.True(t, m.Close(id))
	assert.True(t, cancelled)
	assert.Equal(t, 0, m.Count())

	assert.False(t, m.Close(id), "closing twice should report unknown")
	assert.False(t, m.Close("nope"))
}

func TestConnectionManager_Unregister(t *testing.T) {
	m := NewConnectionManager(time.Minute, testLogger())

	cancelled := false
	id := m.Register("10.0.0.1:1234", "q", func() { cancelled = true })
	m.Unregister(id)

	assert.Equal(t, 0, m.Count())
	// A stream that ended on its own is not cancelled again
	assert.False(t, cancelled)
}

func TestConnectionManager_CloseAll(t *testing.T) {
	m := NewConnectionManager(time.Minute, testLogger())

	cancels := 0
	m.Register("10.0.0.1:1", "a", func() { cancels++ })
	m.Register("10.0.0.2:2", "b", func() { cancels++ })
	m.Register("10.0.0.3:3", "c", func() { cancels++ })

	assert.Equal(t, 3, m.CloseAll())
	assert.Equal(t, 3, cancels)
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0, m.CloseAll())
}

func TestConnectionManager_ReapsIdleConnections(t *testing.T) {
	m := NewConnectionManager(50*time.Millisecond, testLogger())

	staleCancelled := false
	staleID := m.Register("10.0.0.1:1", "stale", func() { staleCancelled = true })
	freshID := m.Register("10.0.0.2:2", "fresh", func() {})

	// Backdate the stale connection past the idle cutoff
	m.mu.Lock()
	m.connections[staleID].LastActivity = time.Now().Add(-time.Second)
	m.mu.Unlock()
	m.Touch(freshID)

	assert.Equal(t, 1, m.reap())
	assert.True(t, staleCancelled)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, freshID, m.List()[0].ID)
}

func TestConnectionManager_StartStop(t *testing.T) {
	m := NewConnectionManager(10*time.Millisecond, testLogger())
	m.reapPeriod = 10 * time.Millisecond
	m.Start()

	cancelled := make(chan struct{})
	m.Register("10.0.0.1:1", "q", func() { close(cancelled) })

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not close the idle connection")
	}

	m.Stop()
	assert.Equal(t, 0, m.Count())
}

func TestConnectionManager_StopClosesEverything(t *testing.T) {
	m := NewConnectionManager(time.Minute, testLogger())

	cancels := 0
	m.Register("10.0.0.1:1", "a", func() { cancels++ })
	m.Register("10.0.0.2:2", "b", func() { cancels++ })

	m.Stop()
	m.Stop() // idempotent

	assert.Equal(t, 2, cancels)
	assert.Equal(t, 0, m.Count())
}
