// Package netwatch turns host connectivity into an "online again" signal.
// It polls the network interfaces and the backend's TCP port and calls back
// when the host comes back from being offline.
package netwatch

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"slices"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	log "github.com/sirupsen/logrus"
)

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 2 * time.Second
)

// Probe reports whether the backend looks reachable.
type Probe func(ctx context.Context) bool

type Options struct {
	// Addr is the backend host:port. Empty checks interfaces only.
	Addr     string
	Interval time.Duration
	Timeout  time.Duration

	OnOnline  func()
	OnOffline func()
	Log       log.FieldLogger

	// Probe replaces the default interface and TCP check.
	Probe Probe
}

type Watcher struct {
	opts  Options
	probe Probe
	log   log.FieldLogger

	mu     sync.Mutex
	known  bool
	online bool
}

func New(opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Log == nil {
		opts.Log = log.StandardLogger()
	}
	w := &Watcher{opts: opts, log: opts.Log.WithField("component", "netwatch")}
	w.probe = opts.Probe
	if w.probe == nil {
		w.probe = w.defaultProbe
	}
	return w
}

// Run probes every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// Online reports the last probe result.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

func (w *Watcher) check(ctx context.Context) {
	up := w.probe(ctx)

	w.mu.Lock()
	was, known := w.online, w.known
	w.online, w.known = up, true
	w.mu.Unlock()

	switch {
	case !known:
		w.log.WithField("online", up).Debug("initial probe")
	case up && !was:
		w.log.Info("network back online")
		if w.opts.OnOnline != nil {
			w.opts.OnOnline()
		}
	case !up && was:
		w.log.Warn("network offline")
		if w.opts.OnOffline != nil {
			w.opts.OnOffline()
		}
	}
}

func (w *Watcher) defaultProbe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()
	if !linkUp(ctx, w.log) {
		return false
	}
	if w.opts.Addr == "" {
		return true
	}
	return dialProbe(ctx, w.opts.Addr)
}

// linkUp reports whether any non-loopback interface is up with an address.
// Listing errors count as up so the TCP probe decides.
func linkUp(ctx context.Context, logger log.FieldLogger) bool {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		logger.WithError(err).Debug("cannot list interfaces")
		return true
	}
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		if len(iface.Addrs) > 0 {
			return true
		}
	}
	return false
}

func dialProbe(ctx context.Context, addr string) bool {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// AddrFromURL extracts host:port from a ws, wss, http or https URL,
// filling in the scheme's default port.
func AddrFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "wss", "https":
			port = "443"
		case "ws", "http":
			port = "80"
		default:
			return "", fmt.Errorf("no port in %q", raw)
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
