package netwatch

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	mu      sync.Mutex
	results []bool
}

func (s *scripted) probe(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return true
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r
}

func TestTransitions(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var onlines, offlines int
	s := &scripted{results: []bool{true, false, false, true, true}}
	w := New(Options{
		Probe:     s.probe,
		Log:       logger,
		OnOnline:  func() { onlines++ },
		OnOffline: func() { offlines++ },
	})

	ctx := context.Background()
	w.check(ctx) // initial online: no callback
	assert.Equal(t, 0, onlines)
	assert.True(t, w.Online())

	w.check(ctx)
	w.check(ctx)
	assert.Equal(t, 1, offlines)
	assert.False(t, w.Online())

	w.check(ctx)
	w.check(ctx)
	assert.Equal(t, 1, onlines)
	assert.Equal(t, 1, offlines)
}

func TestInitiallyOfflineThenOnline(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var onlines int
	s := &scripted{results: []bool{false, true}}
	w := New(Options{Probe: s.probe, Log: logger, OnOnline: func() { onlines++ }})

	w.check(context.Background())
	assert.Equal(t, 0, onlines)
	w.check(context.Background())
	assert.Equal(t, 1, onlines)
}

func TestRunStopsWithContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var onlines atomic.Int32
	s := &scripted{results: []bool{false}}
	w := New(Options{
		Probe:    s.probe,
		Log:      logger,
		Interval: 10 * time.Millisecond,
		OnOnline: func() { onlines.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return onlines.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, int32(1), onlines.Load())
}

func TestDialProbe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, dialProbe(ctx, addr))

	l.Close()
	assert.False(t, dialProbe(ctx, addr))
}

func TestAddrFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "ws://127.0.0.1:8080/ws/websocket", want: "127.0.0.1:8080"},
		{in: "wss://pos.example.com/ws", want: "pos.example.com:443"},
		{in: "http://localhost", want: "localhost:80"},
		{in: "ws://[::1]:9000/ws", want: "[::1]:9000"},
		{in: "tcp://broker", err: true},
		{in: "/relative/path", err: true},
		{in: "::bad", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := AddrFromURL(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
