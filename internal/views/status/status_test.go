package status

import (
	"testing"
	"time"

	"github.com/loclhse/toolbanhangUIUX/internal/realtime"
	"github.com/stretchr/testify/assert"
)

func TestViewStates(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		want  string
	}{
		{name: "ready", model: Model{State: realtime.StateReady}, want: "Live"},
		{name: "subscribing", model: Model{State: realtime.StateSubscribing}, want: "subscribing"},
		{name: "connecting", model: Model{State: realtime.StateConnecting}, want: "Connecting"},
		{name: "backing off", model: Model{Attempt: 3, NextDelay: 8 * time.Second}, want: "Retry 3, next in 8s"},
		{name: "idle", model: Model{}, want: "Disconnected"},
		{name: "offline wins", model: Model{State: realtime.StateReady, Offline: true}, want: "Offline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.model.Width = 100
			assert.Contains(t, tt.model.View(), tt.want)
		})
	}
}

func TestCounts(t *testing.T) {
	m := New()
	m.Width = 100
	m.SetCounts(2, 5, 3)
	assert.Contains(t, m.View(), "2 orders")
	assert.Contains(t, m.View(), "3/5 items done")
}
