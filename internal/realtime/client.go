// Package realtime keeps one STOMP session to the POS backend alive,
// re-subscribes its topics after every reconnect and republishes parsed
// frames on an event bus.
package realtime

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/loclhse/toolbanhangUIUX/internal/eventbus"
	"github.com/loclhse/toolbanhangUIUX/internal/metrics"
	"github.com/loclhse/toolbanhangUIUX/internal/pos"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseDelay      = 1 * time.Second
	defaultMaxDelay       = 30 * time.Second
	defaultPingInterval   = 25 * time.Second
	defaultConnectTimeout = 10 * time.Second
)

// Options configures a Client. Dialer and Bus are required.
type Options struct {
	Dialer  Dialer
	Bus     *eventbus.Bus
	Log     log.FieldLogger
	Metrics *metrics.Prom

	Topics       Topics
	Destinations Destinations

	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	PingInterval       time.Duration
	ConnectTimeout     time.Duration
}

type stopper interface{ Stop() bool }

// Client owns at most one Session at a time.
type Client struct {
	dialer       Dialer
	bus          *eventbus.Bus
	log          log.FieldLogger
	metrics      *metrics.Prom
	topics       Topics
	destinations Destinations

	baseDelay      time.Duration
	maxDelay       time.Duration
	pingInterval   time.Duration
	connectTimeout time.Duration

	// after schedules reconnects; tests replace it to observe delays.
	after func(d time.Duration, f func()) stopper

	mu         sync.Mutex
	state      State
	want       bool   // Connect called and not yet undone by Disconnect
	gen        uint64 // bumped per attempt and on Disconnect
	session    Session
	subs       []io.Closer
	attempt    int
	lastDelay  time.Duration
	reconnect  stopper
	dialCancel context.CancelFunc
	pingCancel context.CancelFunc
}

// New creates an idle client. Nothing is dialled until Connect.
func New(opts Options) *Client {
	c := &Client{
		dialer:         opts.Dialer,
		bus:            opts.Bus,
		log:            opts.Log,
		metrics:        opts.Metrics,
		topics:         opts.Topics,
		destinations:   opts.Destinations,
		baseDelay:      opts.ReconnectBaseDelay,
		maxDelay:       opts.ReconnectMaxDelay,
		pingInterval:   opts.PingInterval,
		connectTimeout: opts.ConnectTimeout,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
	if c.log == nil {
		c.log = log.StandardLogger()
	}
	c.log = c.log.WithField("component", "realtime")
	if c.metrics == nil {
		c.metrics = metrics.NewProm()
	}
	if c.topics == (Topics{}) {
		c.topics = DefaultTopics()
	}
	if c.destinations == (Destinations{}) {
		c.destinations = DefaultDestinations()
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseDelay
	}
	if c.maxDelay < c.baseDelay {
		c.maxDelay = max(defaultMaxDelay, c.baseDelay)
	}
	if c.pingInterval <= 0 {
		c.pingInterval = defaultPingInterval
	}
	if c.connectTimeout <= 0 {
		c.connectTimeout = defaultConnectTimeout
	}
	return c
}

// Backoff returns min(base*2^attempt, maxDelay).
func Backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		if d >= maxDelay/2 {
			return maxDelay
		}
		d *= 2
	}
	return min(d, maxDelay)
}

// Connect starts a connection attempt in the background. It is a no-op
// while a session is connecting or connected.
func (c *Client) Connect() {
	c.mu.Lock()
	c.want = true
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	c.dialCancel = cancel
	c.mu.Unlock()

	c.metrics.ConnectAttempts.Inc()
	go c.dial(ctx, cancel, gen)
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	sess, err := c.dialer.Dial(ctx)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect won the race.
		c.mu.Unlock()
		if sess != nil {
			sess.Disconnect()
		}
		return
	}
	c.dialCancel = nil
	if err != nil {
		c.state = StateIdle
		c.mu.Unlock()

		c.log.WithError(err).Warn("connect failed")
		c.metrics.ConnectErrors.Inc()
		c.bus.Emit(EventConnectError, err.Error())
		c.scheduleReconnect(gen)
		return
	}
	c.session = sess
	c.state = StateConnected
	attempts := c.attempt
	c.attempt = 0
	c.lastDelay = 0
	c.stopReconnectLocked()
	c.mu.Unlock()

	c.metrics.Connected.Set(1)
	c.log.WithField("attempts", attempts).Info("connected")
	c.bus.Emit(EventConnect, ConnectInfo{Attempts: attempts, At: time.Now()})

	c.subscribeAll(gen, sess)
	c.startPing(gen, sess)
	go c.watch(gen, sess)
}

// watch turns an abrupt transport close into a reconnect.
func (c *Client) watch(gen uint64, sess Session) {
	<-sess.Done()

	c.mu.Lock()
	if gen != c.gen || c.session != sess {
		c.mu.Unlock()
		return
	}
	c.session = nil
	// The transport is gone and its subscriptions went with it.
	c.subs = nil
	c.state = StateIdle
	c.stopPingLocked()
	c.mu.Unlock()

	c.metrics.Connected.Set(0)
	c.log.WithError(sess.Err()).Warn("connection lost")
	c.bus.Emit(EventDisconnect, DisconnectInfo{Reason: sess.Err()})
	c.scheduleReconnect(gen)
}

// Disconnect closes the session, if any, and cancels every pending timer
// and in-flight attempt. No automatic reconnect follows until Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.want = false
	c.gen++
	sess := c.session
	subs := c.subs
	c.session = nil
	c.subs = nil
	c.state = StateIdle
	c.attempt = 0
	c.lastDelay = 0
	c.stopPingLocked()
	c.stopReconnectLocked()
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	c.mu.Unlock()

	if sess == nil {
		return
	}
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			c.log.WithError(err).Debug("unsubscribe failed")
		}
	}
	if err := sess.Disconnect(); err != nil {
		c.log.WithError(err).Debug("graceful disconnect failed")
	}
	c.metrics.Connected.Set(0)
	c.log.Info("disconnected")
	c.bus.Emit(EventDisconnect, DisconnectInfo{Intentional: true})
}

// NetworkOnline reacts to connectivity coming back by connecting right away
// instead of waiting out the backoff.
func (c *Client) NetworkOnline() {
	c.mu.Lock()
	idle := c.want && c.state == StateIdle
	c.mu.Unlock()
	if !idle {
		return
	}
	c.log.Info("network restored, reconnecting")
	c.Connect()
}

func (c *Client) scheduleReconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.want || gen != c.gen {
		return
	}
	delay := Backoff(c.baseDelay, c.maxDelay, c.attempt)
	c.attempt++
	c.lastDelay = delay
	c.stopReconnectLocked()
	c.reconnect = c.after(delay, c.fireReconnect)
	c.metrics.ReconnectsSchedule.Inc()
	c.log.WithFields(log.Fields{"attempt": c.attempt, "delay": delay}).Info("reconnect scheduled")
}

func (c *Client) fireReconnect() {
	c.mu.Lock()
	ok := c.want && c.state == StateIdle
	c.mu.Unlock()
	if ok {
		c.Connect()
	}
}

func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Client) stopPingLocked() {
	if c.pingCancel != nil {
		c.pingCancel()
		c.pingCancel = nil
	}
}

// current reports whether sess from attempt gen is still the live session.
func (c *Client) current(gen uint64, sess Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && c.session == sess
}

// State returns the lifecycle phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected is true from the connect event until the session ends.
func (c *Client) IsConnected() bool {
	switch c.State() {
	case StateConnected, StateSubscribing, StateReady:
		return true
	}
	return false
}

// Attempt returns the number of reconnects scheduled since the last
// successful connection.
func (c *Client) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// LastDelay returns the delay of the most recently scheduled reconnect, or
// zero after a successful connection.
func (c *Client) LastDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDelay
}

// NextDelay returns the delay the next scheduled reconnect would use.
func (c *Client) NextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Backoff(c.baseDelay, c.maxDelay, c.attempt)
}

// Send JSON-encodes payload and writes it to destination on the live
// session. It never queues: while disconnected, or if the write fails, the
// message is dropped and Send returns false.
func (c *Client) Send(destination string, payload any) bool {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	logger := c.log.WithField("destination", destination)
	if sess == nil || !sess.Connected() {
		logger.Warn("not connected, dropping message")
		c.metrics.SendsDropped.Inc()
		return false
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).Warn("cannot encode message, dropping")
		c.metrics.SendsDropped.Inc()
		return false
	}
	if err := sess.Send(destination, body); err != nil {
		logger.WithError(err).Warn("send failed, dropping message")
		c.metrics.SendsDropped.Inc()
		return false
	}
	c.metrics.Sends.Inc()
	return true
}

// MarkItem publishes a kitchen mark for other clients.
func (c *Client) MarkItem(m pos.ItemMark) bool {
	return c.Send(c.destinations.ItemMarked, m)
}

// Ping sends one timestamped keepalive.
func (c *Client) Ping() bool {
	return c.Send(c.destinations.Ping, pos.Ping{TS: time.Now().UnixMilli()})
}

func (c *Client) startPing(gen uint64, sess Session) {
	c.mu.Lock()
	if gen != c.gen || c.session != sess {
		c.mu.Unlock()
		return
	}
	c.stopPingLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.pingCancel = cancel
	c.mu.Unlock()

	go c.pingLoop(ctx)
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Ping()
		}
	}
}
