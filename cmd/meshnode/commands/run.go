package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/brightswarm/meshcore/internal/config"
	"github.com/brightswarm/meshcore/internal/mesh"
	meshmetrics "github.com/brightswarm/meshcore/internal/metrics"
	"github.com/brightswarm/meshcore/internal/sim"
)

// shutdownTimeout bounds how long the metrics server is given to drain
// active connections once the simulation loop ends or a signal arrives.
const shutdownTimeout = 10 * time.Second

var runDuration time.Duration

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the configured nodes through an in-process simulation",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSimulation(configPath, runDuration)
		},
	}

	cmd.Flags().DurationVar(&runDuration, "duration", 10*time.Second,
		"how long to run the simulation before stopping")

	return cmd
}

func runSimulation(path string, duration time.Duration) error {
	cfg, err := config.Load(path)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("meshnode starting",
		slog.Int("nodes", len(cfg.Nodes)),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Duration("duration", duration),
	)

	reg := prometheus.NewRegistry()
	collector := meshmetrics.NewCollector(reg)

	medium := sim.NewMedium()
	simLogFn := func(level mesh.LogLevel, msg string, userContext any) {
		nodeID, _ := userContext.(uint32)
		logger.Log(context.Background(), logLevelToSlog(level), msg, slog.Uint64("node_id", uint64(nodeID)))
	}
	s := sim.NewSimulation(medium, simLogFn)

	for _, node := range cfg.Nodes {
		engCfg := cfg.EngineConfig(node)
		engCfg.SendCB.UserContext = node.ID

		eng, err := s.AddNode(sim.NodePosition{X: node.X, Y: node.Y, Z: node.Z}, engCfg)
		if err != nil {
			return fmt.Errorf("add node %d: %w", node.ID, err)
		}
		eng.SeedRandom(node.EffectiveSeed())
		eng.SetGPS(node.X, node.Y, node.Z)
	}

	if err := s.Start(); err != nil {
		return fmt.Errorf("start simulation: %w", err)
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// runCtx is cancelled either by a signal or by driveSimulation
	// finishing on its own once the configured duration elapses -- both
	// must trigger the same graceful-shutdown path below.
	runCtx, cancelRun := context.WithCancel(signalCtx)
	defer cancelRun()

	g, gCtx := errgroup.WithContext(runCtx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		defer cancelRun()
		return driveSimulation(gCtx, s, newStatsTracker(collector), logger, cfg.Engine.SlotDurationMs, duration)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsSrv.Shutdown(shCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("meshnode exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("meshnode stopped")
	return nil
}

// driveSimulation steps the simulation at its configured slot duration
// until duration elapses or ctx is cancelled, recording each node's
// cycle and packet counters into collector after every step.
func driveSimulation(ctx context.Context, s *sim.Simulation, tracker *statsTracker, logger *slog.Logger, slotMs uint32, duration time.Duration) error {
	if slotMs == 0 {
		slotMs = 100
	}
	tick := time.NewTicker(time.Duration(slotMs) * time.Millisecond)
	defer tick.Stop()

	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	var nowMs uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			logStats(logger, s)
			return nil
		case <-tick.C:
			nowMs += uint64(slotMs)
			if err := s.Step(ctx, nowMs); err != nil {
				return fmt.Errorf("simulation step: %w", err)
			}
			tracker.record(s)
		}
	}
}

// statsTracker converts the engine's cumulative StatsSnapshot counters
// into the per-step increments meshmetrics.Collector's CounterVecs
// expect, by diffing against the previous snapshot for each node.
type statsTracker struct {
	collector *meshmetrics.Collector
	prev      map[uint32]mesh.StatsSnapshot
}

func newStatsTracker(collector *meshmetrics.Collector) *statsTracker {
	return &statsTracker{
		collector: collector,
		prev:      make(map[uint32]mesh.StatsSnapshot),
	}
}

func (t *statsTracker) record(s *sim.Simulation) {
	for nodeID, stats := range s.Stats() {
		prev := t.prev[nodeID]
		incTimes(t.collector.IncCycles, nodeID, stats.Cycles-prev.Cycles)
		incTimes(t.collector.IncPacketsSent, nodeID, stats.PacketsSent-prev.PacketsSent)
		incTimes(t.collector.IncPacketsReceived, nodeID, stats.PacketsReceived-prev.PacketsReceived)
		incTimes(t.collector.IncPacketsDropped, nodeID, stats.PacketsDropped-prev.PacketsDropped)
		incTimes(t.collector.IncMessagesForwarded, nodeID, stats.MessagesForwarded-prev.MessagesForwarded)
		t.prev[nodeID] = stats
	}

	for _, snap := range s.Snapshots() {
		t.collector.SetCandidacyScore(snap.NodeID, snap.Score)
		t.collector.SetDirectNeighbors(snap.NodeID, float64(snap.Metrics.DirectCount))
	}
}

func incTimes(inc func(nodeID uint32), nodeID uint32, n uint64) {
	for i := uint64(0); i < n; i++ {
		inc(nodeID)
	}
}

func logStats(logger *slog.Logger, s *sim.Simulation) {
	for _, snap := range s.Snapshots() {
		logger.Info("node final state",
			slog.Uint64("node_id", uint64(snap.NodeID)),
			slog.String("state", snap.State.String()),
			slog.Float64("score", snap.Score),
		)
	}
}

func logLevelToSlog(level mesh.LogLevel) slog.Level {
	switch level {
	case mesh.LogDebug:
		return slog.LevelDebug
	case mesh.LogWarn:
		return slog.LevelWarn
	case mesh.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
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
