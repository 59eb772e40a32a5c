package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEntry(t *testing.T) {
	m := New()
	m.Add("conn", "connected")
	require.Len(t, m.Entries, 1)
	assert.Equal(t, "conn", m.Entries[0].Kind)
}

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add("conn", "msg")
	}
	assert.Len(t, m.Entries, maxEntries)
}

func TestScroll(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.Add("conn", "msg")
	}
	m.ScrollUp(5)
	assert.Equal(t, 5, m.Offset)
	m.ScrollDown(3)
	assert.Equal(t, 2, m.Offset)
	m.ScrollDown(10)
	assert.Equal(t, 0, m.Offset)

	m.ScrollUp(100)
	assert.Equal(t, 19, m.Offset, "capped at len-1")

	m.Add("conn", "new")
	assert.Equal(t, 0, m.Offset, "adding resets scroll")
}

func TestView(t *testing.T) {
	m := New()
	assert.Contains(t, m.View(80, 20), "No events")

	m.Add("conn", "connected")
	m.Add("err", "dial refused")
	v := m.View(80, 20)
	assert.Contains(t, v, "connected")
	assert.Contains(t, v, "dial refused")
}
