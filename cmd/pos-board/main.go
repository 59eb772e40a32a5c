package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/loclhse/toolbanhangUIUX/internal/api"
	"github.com/loclhse/toolbanhangUIUX/internal/app"
	"github.com/loclhse/toolbanhangUIUX/internal/board"
	"github.com/loclhse/toolbanhangUIUX/internal/config"
	"github.com/loclhse/toolbanhangUIUX/internal/eventbus"
	"github.com/loclhse/toolbanhangUIUX/internal/logging"
	"github.com/loclhse/toolbanhangUIUX/internal/metrics"
	"github.com/loclhse/toolbanhangUIUX/internal/netwatch"
	"github.com/loclhse/toolbanhangUIUX/internal/pos"
	"github.com/loclhse/toolbanhangUIUX/internal/realtime"
	"github.com/loclhse/toolbanhangUIUX/internal/storage"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (built-in defaults when empty)")
	wsURL := flag.String("url", "", "STOMP WebSocket URL of the POS backend (overrides config)")
	token := flag.String("token", "", "Bearer token (overrides config)")
	headless := flag.Bool("headless", false, "Log events instead of drawing the board")
	flag.Usage = usage
	flag.Parse()

	cfg, err := loadConfig(*configPath, *wsURL, *token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if args := flag.Args(); len(args) > 0 {
		err = runCommand(cfg, args, os.Stdout)
	} else {
		err = run(cfg, *headless)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: pos-board [flags] [command]

Without a command, shows the live kitchen board.

Commands:
  orders                         list orders
  order ID                       show one order
  tables                         list tables
  menu                           list food items
  create -table ID -item F[xN]   create an order
  update ID -item F[xN]          replace an order's items
  delete ID                      delete an order
  pay -order ID -amount N        record a payment
  payment ID                     show the payment of an order

Flags:
`)
	flag.PrintDefaults()
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(path, wsURL, token string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if wsURL != "" {
		cfg.Realtime.URL = wsURL
		cfg.API.BaseURL = deriveHTTPBase(wsURL)
	}
	if token != "" {
		cfg.Realtime.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// deriveHTTPBase converts ws://host:port/ws/websocket → http://host:port
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") || u.Scheme == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}

func storageDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("no storage dir configured: %w", err)
	}
	return filepath.Join(base, "pos-board"), nil
}

func run(cfg *config.Config, headless bool) error {
	dir, err := storageDir(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	if headless {
		logging.Init(cfg.Log.Level, cfg.Log.Format)
	} else {
		// The board owns the terminal; logs go to a file next to the state.
		f, err := os.OpenFile(filepath.Join(dir, "pos-board.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logging.InitWithOutput(f, cfg.Log.Level, cfg.Log.Format)
	}
	logger := logging.Component("main")

	store, err := storage.Open(filepath.Join(dir, "state"))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewProm()
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, prom, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// Messages queue up until the program exists.
	fwd := newForwarder()
	send := fwd.send

	bus := eventbus.New(logging.Component("bus"))
	rt := realtime.New(realtime.Options{
		Dialer: &realtime.StompDialer{
			URL: cfg.Realtime.URL,
			Options: realtime.StompOptions{
				Host:      cfg.Realtime.Host,
				Login:     cfg.Realtime.Login,
				Passcode:  cfg.Realtime.Passcode,
				Token:     cfg.Realtime.Token,
				HeartBeat: cfg.Realtime.HeartBeat,
			},
		},
		Bus:     bus,
		Log:     logging.Component("realtime"),
		Metrics: prom,
		Topics: realtime.Topics{
			Orders:       cfg.Realtime.Topics.Orders,
			OrderDeleted: cfg.Realtime.Topics.OrderDeleted,
			Payments:     cfg.Realtime.Topics.Payments,
			ItemMarked:   cfg.Realtime.Topics.ItemMarked,
			Pong:         cfg.Realtime.Topics.Pong,
		},
		Destinations: realtime.Destinations{
			Ping:       cfg.Realtime.Destinations.Ping,
			ItemMarked: cfg.Realtime.Destinations.ItemMarked,
		},
		ReconnectBaseDelay: cfg.Realtime.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Realtime.ReconnectMaxDelay,
		PingInterval:       cfg.Realtime.PingInterval,
		ConnectTimeout:     cfg.Realtime.ConnectTimeout,
	})

	b, err := board.New(board.Options{
		Store:              store,
		Log:                logging.Component("board"),
		Metrics:            prom,
		FreshnessWindow:    cfg.Board.FreshnessWindow,
		StalenessThreshold: cfg.Board.StalenessThreshold,
		TombstoneCapacity:  cfg.Board.TombstoneCapacity,
		OnChange:           func() { send(app.BoardChangedMsg{}) },
	})
	if err != nil {
		return err
	}
	b.Attach(bus)

	client := api.NewClient(cfg.API.BaseURL, cfg.Realtime.Token, cfg.API.Timeout, logging.Component("api"))
	client.OnOrderCreated(func(o pos.Order) { bus.Emit(board.EventOrderCreatedLocal, o) })

	addr, err := netwatch.AddrFromURL(cfg.Realtime.URL)
	if err != nil {
		logger.WithError(err).Warn("probing interfaces only")
	}
	watcher := netwatch.New(netwatch.Options{
		Addr:     addr,
		Interval: cfg.Netwatch.ProbeInterval,
		Timeout:  cfg.Netwatch.ProbeTimeout,
		Log:      logging.Component("netwatch"),
		OnOnline: func() {
			rt.NetworkOnline()
			send(app.OnlineMsg{Online: true})
		},
		OnOffline: func() { send(app.OnlineMsg{Online: false}) },
	})
	go watcher.Run(ctx)

	b.Activate()
	rt.Connect()
	defer rt.Disconnect()

	if headless {
		return runHeadless(ctx, bus, b, client, cfg.Board.StalenessThreshold, logger)
	}

	for _, name := range []string{realtime.EventConnect, realtime.EventDisconnect, realtime.EventConnectError} {
		name := name
		bus.On(name, func(p any) { send(app.ConnEventMsg{Name: name, Payload: p}) })
	}

	p := tea.NewProgram(app.New(rt, client, b),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	go fwd.run(ctx, p.Send)
	if _, err := p.Run(); err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return err
	}
	logger.Info("board closed")
	return nil
}

// forwarder delivers messages to the program one at a time, in the order
// they were sent. send never blocks, so it is safe to call from Update,
// which runs while the program is not reading.
type forwarder struct {
	mu    sync.Mutex
	queue []tea.Msg
	wake  chan struct{}
}

func newForwarder() *forwarder {
	return &forwarder{wake: make(chan struct{}, 1)}
}

func (f *forwarder) send(msg tea.Msg) {
	f.mu.Lock()
	f.queue = append(f.queue, msg)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *forwarder) run(ctx context.Context, deliver func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
		}
		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		f.mu.Unlock()
		for _, msg := range batch {
			deliver(msg)
		}
	}
}

func serveMetrics(addr string, prom *metrics.Prom, logger log.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	return srv
}

// runHeadless logs every bus event and keeps the board in sync until ctx
// ends.
func runHeadless(ctx context.Context, bus *eventbus.Bus, b *board.Board, client *api.Client, every time.Duration, logger log.FieldLogger) error {
	for _, name := range []string{
		realtime.EventConnect, realtime.EventDisconnect, realtime.EventConnectError,
		realtime.EventOrderUpdate, realtime.EventOrderDeleted, realtime.EventPaymentUpdate, realtime.EventItemMarked,
	} {
		name := name
		bus.On(name, func(p any) {
			logger.WithFields(log.Fields{"event": name, "payload": fmt.Sprintf("%+v", p)}).Info("event")
		})
	}

	// Frames published while disconnected are not redelivered, so every
	// reconnect forces a fetch.
	reconnected := make(chan struct{}, 1)
	bus.On(realtime.EventConnect, func(p any) {
		if info, _ := p.(realtime.ConnectInfo); info.Attempts > 0 {
			select {
			case reconnected <- struct{}{}:
			default:
			}
		}
	})

	resync := func(force bool) {
		if !force && !b.ShouldRefetch() {
			return
		}
		fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		started := b.BeginFetch()
		orders, err := client.ListOrders(fetchCtx)
		if err != nil {
			logger.WithError(err).Warn("fetch failed")
			return
		}
		visible := b.ApplyFetch(orders, started)
		logger.WithFields(log.Fields{"fetched": len(orders), "visible": len(visible)}).Info("synced")
	}

	resync(true)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-reconnected:
			resync(true)
		case <-ticker.C:
			resync(false)
		}
	}
}
