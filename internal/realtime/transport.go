package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout      = 10 * time.Second
	disconnectTimeout = 3 * time.Second
)

// Dialer opens one Session. A failure covers both "could not open the
// socket" and "the broker rejected the handshake".
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Session is one live STOMP connection.
type Session interface {
	// Subscribe binds fn to topic. Frames for one topic are delivered to fn
	// one at a time, in arrival order.
	Subscribe(topic string, fn func(body []byte)) (io.Closer, error)
	// Send writes a JSON body to destination.
	Send(destination string, body []byte) error
	// Connected reports whether the session can still carry frames.
	Connected() bool
	// Done is closed when the underlying transport goes away, whether
	// abruptly or through Disconnect.
	Done() <-chan struct{}
	// Err returns the reason Done was closed.
	Err() error
	// Disconnect closes the session gracefully.
	Disconnect() error
}

// StompOptions are the STOMP CONNECT frame settings.
type StompOptions struct {
	Host      string
	Login     string
	Passcode  string
	Token     string
	HeartBeat time.Duration
}

func (o StompOptions) connOpts() []func(*stomp.Conn) error {
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(o.HeartBeat, o.HeartBeat),
		stomp.ConnOpt.UnsubscribeReceiptTimeout(disconnectTimeout),
	}
	if o.Host != "" {
		opts = append(opts, stomp.ConnOpt.Host(o.Host))
	}
	if o.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(o.Login, o.Passcode))
	}
	if o.Token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", "Bearer "+o.Token))
	}
	return opts
}

// StompDialer speaks STOMP over a WebSocket endpoint.
type StompDialer struct {
	URL     string
	Options StompOptions
}

func (d *StompDialer) Dial(ctx context.Context) (Session, error) {
	header := http.Header{}
	if d.Options.Token != "" {
		header.Set("Authorization", "Bearer "+d.Options.Token)
	}
	ws := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
	}
	conn, _, err := ws.DialContext(ctx, d.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return openStompSession(ctx, newWSStream(conn), d.Options)
}

// NetDialer speaks STOMP over a plain TCP stream.
type NetDialer struct {
	Addr    string
	Options StompOptions
}

func (d *NetDialer) Dial(ctx context.Context) (Session, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Addr, err)
	}
	return openStompSession(ctx, conn, d.Options)
}

type stompSession struct {
	conn   *stomp.Conn
	stream *watchedStream
}

func openStompSession(ctx context.Context, rwc io.ReadWriteCloser, opts StompOptions) (*stompSession, error) {
	stream := newWatchedStream(rwc)

	// stomp.Connect blocks on the CONNECTED frame; closing the stream is
	// the only way to abandon it.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	conn, err := stomp.Connect(stream, opts.connOpts()...)
	if !stop() {
		if err == nil {
			conn.MustDisconnect()
		}
		return nil, fmt.Errorf("stomp handshake: %w", ctx.Err())
	}
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("stomp handshake: %w", err)
	}
	return &stompSession{conn: conn, stream: stream}, nil
}

func (s *stompSession) Subscribe(topic string, fn func(body []byte)) (io.Closer, error) {
	sub, err := s.conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	go func() {
		for msg := range sub.C {
			if msg.Err != nil {
				continue
			}
			fn(msg.Body)
		}
	}()
	return closerFunc(func() error { return sub.Unsubscribe() }), nil
}

func (s *stompSession) Send(destination string, body []byte) error {
	return s.conn.Send(destination, "application/json", body)
}

func (s *stompSession) Connected() bool {
	select {
	case <-s.stream.Done():
		return false
	default:
		return true
	}
}

func (s *stompSession) Done() <-chan struct{} { return s.stream.Done() }

func (s *stompSession) Err() error { return s.stream.Err() }

func (s *stompSession) Disconnect() error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.conn.Disconnect() }()

	var err error
	select {
	case err = <-errCh:
	case <-time.After(disconnectTimeout):
		err = errors.New("disconnect receipt timed out")
	}
	s.stream.Close()
	return err
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

// watchedStream closes done on the first read failure or Close, which is
// how an abrupt transport close becomes visible to the connection manager.
type watchedStream struct {
	rwc  io.ReadWriteCloser
	once sync.Once
	done chan struct{}
	err  error
}

func newWatchedStream(rwc io.ReadWriteCloser) *watchedStream {
	return &watchedStream{rwc: rwc, done: make(chan struct{})}
}

func (s *watchedStream) Read(p []byte) (int, error) {
	n, err := s.rwc.Read(p)
	if err != nil {
		s.finish(err)
	}
	return n, err
}

func (s *watchedStream) Write(p []byte) (int, error) {
	return s.rwc.Write(p)
}

func (s *watchedStream) Close() error {
	err := s.rwc.Close()
	s.finish(errClosed)
	return err
}

var errClosed = errors.New("transport closed")

func (s *watchedStream) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *watchedStream) Done() <-chan struct{} { return s.done }

// Err is only meaningful once Done is closed.
func (s *watchedStream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// wsStream presents a WebSocket connection as a byte stream. Each Write is
// one text message; reads run across message boundaries.
type wsStream struct {
	conn    *websocket.Conn
	reader  io.Reader
	writeMu sync.Mutex // serialises frame writes and heart-beats
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
