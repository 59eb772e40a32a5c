package realtime

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/server"
	"github.com/gorilla/websocket"
	"github.com/loclhse/toolbanhangUIUX/internal/pos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSStreamReadsAcrossMessages(t *testing.T) {
	received := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("MESSAGE\n\nfirst\x00"))
		conn.WriteMessage(websocket.TextMessage, []byte("MESSAGE\n\nsecond\x00"))
		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- string(data)
		}
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	stream := newWatchedStream(newWSStream(conn))

	// Tiny reads force the adapter to hop message boundaries.
	var sb strings.Builder
	buf := make([]byte, 4)
	want := "MESSAGE\n\nfirst\x00MESSAGE\n\nsecond\x00"
	for sb.Len() < len(want) {
		n, err := stream.Read(buf)
		require.NoError(t, err)
		sb.Write(buf[:n])
	}
	assert.Equal(t, want, sb.String())

	_, err = stream.Write([]byte("SEND\ndestination:/app/ping\n\n{}\x00"))
	require.NoError(t, err)
	select {
	case msg := <-received:
		assert.Equal(t, "SEND\ndestination:/app/ping\n\n{}\x00", msg)
	case <-time.After(waitFor):
		t.Fatal("server never received the frame")
	}

	// The server handler returns and closes; the next read fails and Done
	// closes.
	_, err = io.ReadAll(stream)
	assert.Error(t, err)
	select {
	case <-stream.Done():
	case <-time.After(waitFor):
		t.Fatal("Done not closed after transport close")
	}
	assert.Error(t, stream.Err())
}

func TestStompDialerRejectsBadURL(t *testing.T) {
	d := &StompDialer{URL: "ws://127.0.0.1:1/ws"}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := d.Dial(ctx)
	assert.Error(t, err)
}

func TestStompHandshakeTimesOut(t *testing.T) {
	// A listener that accepts and never answers CONNECT.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	d := &NetDialer{Addr: l.Addr().String()}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = d.Dial(ctx)
	assert.Error(t, err)
}

func startBroker(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go server.Serve(l)
	return l.Addr().String()
}

func TestClientAgainstBroker(t *testing.T) {
	addr := startBroker(t)

	topics := DefaultTopics()
	dests := Destinations{Ping: "/topic/ping-sink", ItemMarked: topics.ItemMarked}
	h := newHarness(Options{
		Dialer:       &NetDialer{Addr: addr},
		Topics:       topics,
		Destinations: dests,
	})

	h.client.Connect()
	h.waitState(t, StateReady)

	// Publish from an independent connection, as the backend would.
	pub, err := stomp.Dial("tcp", addr)
	require.NoError(t, err)
	defer pub.Disconnect()

	require.Eventually(t, func() bool {
		pub.Send(topics.OrderDeleted, "application/json", []byte(`"\"abc-123\""`))
		return h.events.count(EventOrderDeleted) > 0
	}, waitFor, 20*time.Millisecond)
	assert.Equal(t, pos.ID("abc-123"), h.events.get(EventOrderDeleted)[0])

	// Our own mark comes back through the item-mark topic.
	mark := pos.ItemMark{OrderID: "7", ItemID: "3", Marked: true}
	require.Eventually(t, func() bool {
		h.client.MarkItem(mark)
		return h.events.count(EventItemMarked) > 0
	}, waitFor, 20*time.Millisecond)
	assert.Equal(t, mark, h.events.get(EventItemMarked)[0])

	h.client.Disconnect()
	assert.False(t, h.client.IsConnected())
	assert.False(t, h.client.Send(dests.Ping, pos.Ping{TS: 1}))
}
