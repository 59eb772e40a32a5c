package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/loclhse/toolbanhangUIUX/internal/eventbus"
	"github.com/loclhse/toolbanhangUIUX/internal/metrics"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type sentMsg struct {
	destination string
	body        []byte
}

type fakeSession struct {
	mu          sync.Mutex
	subs        map[string]func([]byte)
	closed      []string // unsubscribed topics, then "DISCONNECT"
	sent        []sentMsg
	notReady    bool
	done        chan struct{}
	once        sync.Once
	err         error
	disconnects int
}

func newFakeSession() *fakeSession {
	return &fakeSession{subs: make(map[string]func([]byte)), done: make(chan struct{})}
}

func (s *fakeSession) Subscribe(topic string, fn func([]byte)) (io.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[topic] = fn
	return closerFunc(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, topic)
		s.closed = append(s.closed, topic)
		return nil
	}), nil
}

func (s *fakeSession) Send(destination string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMsg{destination: destination, body: body})
	return nil
}

func (s *fakeSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notReady {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	s.disconnects++
	s.closed = append(s.closed, "DISCONNECT")
	s.mu.Unlock()
	s.drop(errClosed)
	return nil
}

// drop simulates the transport going away.
func (s *fakeSession) drop(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// deliver pushes a frame to the handler bound to topic, as the transport
// would.
func (s *fakeSession) deliver(topic string, body string) bool {
	s.mu.Lock()
	fn := s.subs[topic]
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn([]byte(body))
	return true
}

func (s *fakeSession) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subs))
	for t := range s.subs {
		out = append(out, t)
	}
	return out
}

func (s *fakeSession) sentTo(destination string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, m := range s.sent {
		if m.destination == destination {
			out = append(out, m.body)
		}
	}
	return out
}

type dialResult struct {
	sess *fakeSession
	err  error
}

// fakeDialer hands out scripted results. With no script left it fails.
// When gate is set, Dial blocks until the gate is closed or ctx ends.
type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	script   []dialResult
	sessions []*fakeSession
	gate     chan struct{}
}

var errRefused = errors.New("connection refused")

func (d *fakeDialer) Dial(ctx context.Context) (Session, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	var r dialResult
	if len(d.script) > 0 {
		r = d.script[0]
		d.script = d.script[1:]
	} else {
		r = dialResult{err: errRefused}
	}
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	d.mu.Lock()
	d.sessions = append(d.sessions, r.sess)
	d.mu.Unlock()
	return r.sess, nil
}

func (d *fakeDialer) push(results ...dialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, results...)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func ok(s *fakeSession) dialResult { return dialResult{sess: s} }
func fail() dialResult             { return dialResult{err: errRefused} }

// manualTimers records reconnect schedules instead of sleeping.
type manualTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (m *manualTimers) after(d time.Duration, f func()) stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{fn: f}
	m.delays = append(m.delays, d)
	m.timers = append(m.timers, t)
	return t
}

func (m *manualTimers) scheduled() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.delays))
	copy(out, m.delays)
	return out
}

func (m *manualTimers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delays)
}

// fireLast runs the most recent timer unless it was stopped, the way
// time.AfterFunc would once its delay elapsed.
func (m *manualTimers) fireLast() bool {
	m.mu.Lock()
	if len(m.timers) == 0 {
		m.mu.Unlock()
		return false
	}
	t := m.timers[len(m.timers)-1]
	m.mu.Unlock()

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return false
	}
	t.stopped = true
	fn := t.fn
	t.mu.Unlock()
	fn()
	return true
}

// recorder collects bus emissions.
type recorder struct {
	mu     sync.Mutex
	events map[string][]any
}

func newRecorder(bus *eventbus.Bus, names ...string) *recorder {
	r := &recorder{events: make(map[string][]any)}
	for _, name := range names {
		name := name
		bus.On(name, func(p any) {
			r.mu.Lock()
			r.events[name] = append(r.events[name], p)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) get(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.events[name]))
	copy(out, r.events[name])
	return out
}

func (r *recorder) count(name string) int {
	return len(r.get(name))
}

var allEvents = []string{
	EventConnect, EventDisconnect, EventConnectError,
	EventOrderUpdate, EventOrderDeleted, EventPaymentUpdate, EventItemMarked,
}

type harness struct {
	client *Client
	dialer *fakeDialer
	timers *manualTimers
	bus    *eventbus.Bus
	events *recorder
	logs   *test.Hook
}

func newHarness(opts Options) *harness {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	bus := eventbus.New(logger)
	dialer := &fakeDialer{}
	if opts.Dialer == nil {
		opts.Dialer = dialer
	}
	opts.Bus = bus
	opts.Log = logger
	opts.Metrics = metrics.NewProm()
	if opts.ReconnectBaseDelay == 0 {
		opts.ReconnectBaseDelay = 100 * time.Millisecond
	}
	if opts.ReconnectMaxDelay == 0 {
		opts.ReconnectMaxDelay = 1600 * time.Millisecond
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = time.Hour
	}

	c := New(opts)
	timers := &manualTimers{}
	c.after = timers.after

	return &harness{
		client: c,
		dialer: dialer,
		timers: timers,
		bus:    bus,
		events: newRecorder(bus, allEvents...),
		logs:   hook,
	}
}
