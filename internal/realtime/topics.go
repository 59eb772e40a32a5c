package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/loclhse/toolbanhangUIUX/internal/pos"
)

// route binds a topic to its parser and the bus event it feeds. An empty
// event means the parsed value is consumed locally.
type route struct {
	topic string
	event string
	parse func([]byte) (any, error)
}

func (c *Client) routes() []route {
	return []route{
		{topic: c.topics.Orders, event: EventOrderUpdate, parse: parseOrder},
		{topic: c.topics.OrderDeleted, event: EventOrderDeleted, parse: parseOrderDeleted},
		{topic: c.topics.Payments, event: EventPaymentUpdate, parse: parsePayment},
		{topic: c.topics.ItemMarked, event: EventItemMarked, parse: parseItemMark},
		{topic: c.topics.Pong, parse: parsePong},
	}
}

// subscribeAll runs the subscribing phase for a freshly connected session.
// Every connection gets fresh subscriptions; nothing carries over.
func (c *Client) subscribeAll(gen uint64, sess Session) {
	c.mu.Lock()
	if gen != c.gen || c.session != sess {
		c.mu.Unlock()
		return
	}
	c.state = StateSubscribing
	c.mu.Unlock()

	subs := c.subscribe(gen, sess)

	c.mu.Lock()
	if gen == c.gen && c.session == sess {
		c.subs = subs
		c.state = StateReady
	}
	c.mu.Unlock()
}

func (c *Client) subscribe(gen uint64, sess Session) []io.Closer {
	if !sess.Connected() {
		c.log.Warn("session not connected, skipping subscriptions")
		return nil
	}
	var subs []io.Closer
	for _, r := range c.routes() {
		if r.topic == "" {
			continue
		}
		sub, err := sess.Subscribe(r.topic, c.frameHandler(gen, sess, r))
		if err != nil {
			c.log.WithError(err).WithField("topic", r.topic).Warn("subscribe failed")
			continue
		}
		subs = append(subs, sub)
	}
	c.log.WithField("topics", len(subs)).Debug("subscribed")
	return subs
}

func (c *Client) frameHandler(gen uint64, sess Session, r route) func([]byte) {
	logger := c.log.WithField("topic", r.topic)
	return func(body []byte) {
		if !c.current(gen, sess) {
			return
		}
		c.metrics.FramesReceived.WithLabelValues(r.topic).Inc()
		v, err := r.parse(body)
		if err != nil {
			logger.WithError(err).Warn("dropping unparseable frame")
			c.metrics.FramesDropped.WithLabelValues(r.topic).Inc()
			return
		}
		if r.event == "" {
			c.handlePong(v.(pos.Pong))
			return
		}
		c.bus.Emit(r.event, v)
	}
}

func (c *Client) handlePong(p pos.Pong) {
	if p.TS <= 0 {
		return
	}
	rtt := time.Since(time.UnixMilli(p.TS))
	if rtt < 0 {
		return
	}
	c.metrics.PingRTT.Observe(float64(rtt.Milliseconds()))
	c.log.WithField("rtt", rtt).Debug("pong")
}

func parseOrder(body []byte) (any, error) {
	var o pos.Order
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("parsing order: %w", err)
	}
	if o.ID == "" {
		return nil, errors.New("order without id")
	}
	return o, nil
}

// parseOrderDeleted reads the deleted order id. The server may send it as a
// JSON string, a JSON number, a bare token, or a JSON string wrapping a
// quoted string; one extra layer of quotes is stripped.
func parseOrderDeleted(body []byte) (any, error) {
	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		return nil, errors.New("empty order id")
	}
	s := string(raw)
	if raw[0] == '"' {
		var decoded string
		if err := json.Unmarshal(raw, &decoded); err == nil {
			s = decoded
		}
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return nil, errors.New("empty order id")
	}
	return pos.ID(s), nil
}

func parsePayment(body []byte) (any, error) {
	var p pos.Payment
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parsing payment: %w", err)
	}
	return p, nil
}

func parseItemMark(body []byte) (any, error) {
	var m pos.ItemMark
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("parsing item mark: %w", err)
	}
	if m.OrderID == "" || m.ItemID == "" {
		return nil, errors.New("item mark without order or item id")
	}
	return m, nil
}

func parsePong(body []byte) (any, error) {
	var p pos.Pong
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parsing pong: %w", err)
	}
	return p, nil
}
