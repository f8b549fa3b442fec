// Gobcpd daemon -- backpressure collection protocol node process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gobcp/internal/bcp"
	"github.com/dantte-lp/gobcp/internal/config"
	bcpmetrics "github.com/dantte-lp/gobcp/internal/metrics"
	"github.com/dantte-lp/gobcp/internal/radio"
	"github.com/dantte-lp/gobcp/internal/server"
	appversion "github.com/dantte-lp/gobcp/internal/version"
)

// shutdownTimeout bounds how long the status/metrics HTTP servers are
// given to drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel).With(
		slog.String("instance", xid.New().String()),
	)

	hi, lo, err := config.ParseAddr(cfg.Node.Addr)
	if err != nil {
		logger.Error("invalid node address", slog.String("error", err.Error()))
		return 1
	}
	self := bcp.Addr{hi, lo}

	logger.Info("gobcpd starting",
		slog.String("version", appversion.Version),
		slog.String("node", self.String()),
		slog.Bool("sink", cfg.Node.Sink),
		slog.String("status_addr", cfg.Status.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := bcpmetrics.NewCollector(reg)

	peers, err := buildPeerBook(cfg.Node.Peers)
	if err != nil {
		logger.Error("invalid peer configuration", slog.String("error", err.Error()))
		return 1
	}

	mcastGroup, err := netip.ParseAddrPort(multicastGroupFor(cfg.Node))
	if err != nil {
		logger.Error("invalid node.multicast address", slog.String("error", err.Error()))
		return 1
	}
	unicastAddr, err := netip.ParseAddrPort(cfg.Node.UnicastAddr)
	if err != nil {
		logger.Error("invalid node.unicast_addr", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := radio.NewUDPRadio(ctx, radio.UDPConfig{
		Self:        self,
		McastGroup:  mcastGroup,
		UnicastAddr: unicastAddr,
		Iface:       cfg.Node.Interface,
		Peers:       peers,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to open radio", slog.String("error", err.Error()))
		return 1
	}
	defer r.Close()

	conn, err := openConnection(cfg, self, r, collector, logger)
	if err != nil {
		logger.Error("failed to open connection", slog.String("error", err.Error()))
		return 1
	}
	defer conn.Close()

	if err := runDaemon(ctx, cfg, conn, r, reg, collector, logger, *configPath, logLevel); err != nil {
		logger.Error("gobcpd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("gobcpd stopped")
	return 0
}

// openConnection builds a bcp.Connection wired to the radio transport, the
// configured weight estimator, and Prometheus counters driven off the
// protocol's own notification callbacks.
func openConnection(
	cfg *config.Config,
	self bcp.Addr,
	r bcp.Radio,
	collector *bcpmetrics.Collector,
	logger *slog.Logger,
) (*bcp.Connection, error) {
	var estimator bcp.Estimator
	if cfg.Node.Estimator == "link_aware" {
		estimator = bcp.LinkAwareEstimator{}
	}

	node := self.String()

	callbacks := bcp.Callbacks{
		Recv: func(origin bcp.Addr, payload []byte) {
			collector.IncPacketsReceived(node, "data")
			logger.Info("packet delivered",
				slog.String("origin", origin.String()),
				slog.Int("bytes", len(payload)),
			)
		},
		Sent: func(payload []byte) {
			collector.IncPacketsSent(node, "data")
			logger.Debug("packet acknowledged", slog.Int("bytes", len(payload)))
		},
		Dropped: func() {
			collector.IncPacketsDropped(node)
			logger.Warn("packet dropped")
		},
		Retransmit: func() {
			collector.IncRetransmissions(node)
			logger.Warn("retransmission path entered")
		},
		BeaconRequestSent: func() {
			collector.IncBeaconRequestsSent(node)
			logger.Debug("beacon request sent")
		},
	}

	return bcp.Open(bcp.Config{
		Addr:                   self,
		Radio:                  r,
		Estimator:              estimator,
		Logger:                 logger,
		IsSink:                 cfg.Node.Sink,
		BeaconInterval:         cfg.Node.BeaconInterval,
		SendTimeDelay:          cfg.Node.SendTimeDelay,
		RetransmissionInterval: cfg.Node.RetransmissionInterval,
	}, callbacks)
}

// defaultMulticastPort is the UDP port BCP broadcasts use when a node's
// multicast group is derived from its channel number rather than set
// explicitly.
const defaultMulticastPort = 5683

// multicastGroupFor returns cfg.Multicast if set, otherwise derives an
// admin-scoped multicast group from cfg.Channel by convention: channel N
// maps to 239.1.2.N, the final octet distinguishing sibling BCP networks
// sharing a link.
func multicastGroupFor(cfg config.NodeConfig) string {
	if cfg.Multicast != "" {
		return cfg.Multicast
	}
	return fmt.Sprintf("239.1.2.%d:%d", cfg.Channel, defaultMulticastPort)
}

// buildPeerBook resolves the static peer list from configuration into the
// address book internal/radio.UDPRadio needs for unicast sends.
func buildPeerBook(peers []config.PeerConfig) (radio.PeerBook, error) {
	book := make(radio.PeerBook, len(peers))
	for _, p := range peers {
		hi, lo, err := config.ParseAddr(p.Addr)
		if err != nil {
			return nil, fmt.Errorf("peer %q: %w", p.Addr, err)
		}
		endpoint, err := netip.ParseAddrPort(p.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("peer %q endpoint %q: %w", p.Addr, p.Endpoint, err)
		}
		book[bcp.Addr{hi, lo}] = endpoint
	}
	return book, nil
}

// gaugeSampleInterval is how often runDaemon polls the running Connection
// to refresh the queue-depth and routing-table-size gauges.
const gaugeSampleInterval = 2 * time.Second

// runDaemon runs the Connection's event loop alongside the status and
// metrics HTTP servers under a single errgroup, shutting everything down
// together when ctx is cancelled (SIGINT/SIGTERM) or any goroutine fails.
func runDaemon(
	ctx context.Context,
	cfg *config.Config,
	conn *bcp.Connection,
	r *radio.UDPRadio,
	reg *prometheus.Registry,
	collector *bcpmetrics.Collector,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return conn.Run(gCtx, r.Inbound())
	})

	g.Go(func() error {
		sampleGauges(gCtx, conn, collector)
		return nil
	})

	statusSrv := server.New(conn, logger)
	statusSrv.Addr = cfg.Status.Addr
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("status server listening", slog.String("addr", cfg.Status.Addr))
		return listenAndServe(gCtx, &lc, statusSrv, cfg.Status.Addr)
	})
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, logger)
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, statusSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

// sampleGauges periodically polls conn.Stats and republishes the queue
// length and routing table size gauges until ctx is cancelled.
func sampleGauges(ctx context.Context, conn *bcp.Connection, collector *bcpmetrics.Collector) {
	ticker := time.NewTicker(gaugeSampleInterval)
	defer ticker.Stop()

	node := conn.Addr().String()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := conn.Stats(ctx)
			collector.SetQueueLength(node, stats.QueueLength)
			collector.SetRoutingTableSize(node, stats.RoutingTableSize)
		}
	}
}

// handleSIGHUP reloads the dynamic log level from configPath on SIGHUP.
// The protocol engine's own parameters (timers, estimator, sink status)
// take effect only at Open time; a SIGHUP does not restart the running
// Connection.
func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			newCfg, err := loadConfig(configPath)
			if err != nil {
				logger.Error("failed to reload configuration, keeping current settings",
					slog.String("error", err.Error()),
				)
				continue
			}
			oldLevel := logLevel.Level()
			newLevel := config.ParseLogLevel(newCfg.Log.Level)
			logLevel.Set(newLevel)
			logger.Info("configuration reloaded",
				slog.String("old_log_level", oldLevel.String()),
				slog.String("new_log_level", newLevel.String()),
			)
		}
	}
}

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
