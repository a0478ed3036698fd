// Command schedulerd runs the VTOL fleet dispatcher's scheduling core: the
// gRPC-facing entry points (C9), the itinerary search engine (C5), and the
// background task processor (C8) that drains the priority queues (C7) and
// writes through the storage adapter (C4).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/aetheric-oss/svc-scheduler/internal/calendar"
	"github.com/aetheric-oss/svc-scheduler/internal/config"
	"github.com/aetheric-oss/svc-scheduler/internal/gisclient"
	"github.com/aetheric-oss/svc-scheduler/internal/processor"
	"github.com/aetheric-oss/svc-scheduler/internal/queuestore"
	"github.com/aetheric-oss/svc-scheduler/internal/rpc"
	"github.com/aetheric-oss/svc-scheduler/internal/search"
	"github.com/aetheric-oss/svc-scheduler/internal/storage"
	"github.com/aetheric-oss/svc-scheduler/internal/timeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present; real environment variables still win.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.BindFlags(pflag.CommandLine)
	pflag.Parse()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srvMetrics := grpcprom.NewServerMetrics(grpcprom.WithServerHandlingTimeHistogram())
	prometheus.MustRegister(srvMetrics)

	if cfg.MetricsAddr != "" {
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start metrics listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	store, err := storage.New(ctx, cfg.StorageDSN)
	if err != nil {
		return fmt.Errorf("connect storage: %w", err)
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.QueueStoreAddress})
	defer rdb.Close()
	queue := queuestore.New(rdb)

	gis, err := gisclient.New(gisclient.Config{
		Logger:  log,
		BaseURL: cfg.GISAddress,
	})
	if err != nil {
		return fmt.Errorf("construct gis client: %w", err)
	}
	defer gis.Close()

	clock := clockwork.NewRealClock()
	evaluator := calendar.NewEvaluator(time.Duration(cfg.MinPadBlockSeconds) * time.Second)
	tl := timeline.NewBuilder(evaluator, store, clock)
	engine := search.NewEngine(store, tl, gis, cfg.MaxDeadheadDuration, clock)

	proc := processor.New(log, queue, store, engine, processor.Config{
		TaskTTL:    cfg.DefaultTaskTTL,
		PopTimeout: cfg.TaskPopTimeout,
		Clock:      clock,
	})
	go func() {
		if err := proc.Run(ctx); err != nil {
			log.Error("task processor exited", "error", err)
		}
	}()

	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec),
		grpc.ChainUnaryInterceptor(srvMetrics.UnaryServerInterceptor()),
	)
	rpcServer := rpc.NewServer(log, engine, queue, store, cfg.DefaultTaskTTL, clock)
	rpc.RegisterSchedulerServer(grpcServer, rpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	log.Info("grpc server listening", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- grpcServer.Serve(listener) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return fmt.Errorf("grpc server stopped: %w", err)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}))
}
