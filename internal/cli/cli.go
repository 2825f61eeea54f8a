// ============================================================================
// Store Resolver CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides the command line interface based on the Cobra framework
//
// Command Structure:
//   store-resolver                 # Root command
//   ├── resolve <id>...            # Resolve store ids to endpoints
//   │   ├── --timeout             # Timeout of one round
//   │   └── --interval            # Repeat until interrupted, serving metrics
//   ├── serve                      # Run a coordinator backed by static stores
//   │   └── --port                # gRPC listen port
//   ├── status                     # Print the effective configuration
//   ├── --config, -c               # Config file (default: configs/default.yaml)
//   └── --version
//
// Coordinator Selection:
//   If coordinator.address is set, lookups go to that gRPC coordinator.
//   Otherwise the coordinator.stores table from the config answers them.
//
// Signal Handling:
//   serve and resolve --interval stop on SIGINT or SIGTERM: servers drain,
//   the resolver worker is joined and the command returns.
//
// ============================================================================

package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ChuLiYu/store-resolver/internal/coordinator"
	"github.com/ChuLiYu/store-resolver/internal/metrics"
	"github.com/ChuLiYu/store-resolver/internal/resolver"
	"github.com/ChuLiYu/store-resolver/internal/server"
	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultConfigPath = "configs/default.yaml"

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "store-resolver",
		Short: "Resolve cluster store ids to network endpoints",
		Long: `store-resolver maps store ids to addresses through the cluster coordinator:
- 60 second address cache
- tombstoned and address-less stores are rejected
- Prometheus metrics`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	rootCmd.AddCommand(buildResolveCommand())
	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildResolveCommand() *cobra.Command {
	var (
		timeout  time.Duration
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resolve <store-id>...",
		Short: "Resolve store ids to endpoints",
		Long: `Resolve store ids to endpoints once, or every --interval until interrupted.
In watch mode the metrics server is started when metrics.enabled is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]types.StoreID, 0, len(args))
			for _, a := range args {
				id, err := types.ParseStoreID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			cfg, err := loadConfig(configFile)
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runResolve(ctx, cfg, ids, resolveOptions{
				timeout:  timeout,
				interval: interval,
				out:      cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "timeout of one resolve round")
	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat every interval until interrupted (0 = once)")
	return cmd
}

type resolveOptions struct {
	timeout  time.Duration
	interval time.Duration
	out      io.Writer
	registry *prometheus.Registry // defaults to a fresh registry
}

// runResolve resolves ids through one resolver. A single round returns an
// error if any id failed; watch mode only reports failures.
func runResolve(ctx context.Context, cfg *Config, ids []types.StoreID, opts resolveOptions) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client, closeClient, err := newCoordinatorClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	reg := opts.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	collector := metrics.NewCollector(reg)

	r, err := resolver.New(client, resolver.Config{
		RefreshInterval: cfg.Resolver.RefreshInterval,
		QueueSize:       cfg.Resolver.QueueSize,
		Logger:          logger,
		Metrics:         collector,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create resolver")
	}
	defer r.Close()

	if opts.interval <= 0 {
		return resolveRound(ctx, r, ids, opts)
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		serveMetrics(ctx, g, collector, cfg.Metrics.Port, logger)
	}
	g.Go(func() error {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			if err := resolveRound(ctx, r, ids, opts); err != nil {
				logger.Warn("resolve round failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}

// resolveRound resolves ids concurrently and prints one line per id in
// argument order.
func resolveRound(ctx context.Context, r *resolver.Resolver, ids []types.StoreID, opts resolveOptions) error {
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	lines := make([]string, len(ids))
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id types.StoreID) {
			defer wg.Done()
			addr, err := r.ResolveSync(ctx, id)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				lines[i] = fmt.Sprintf("%d -> error: %v", id, err)
				return
			}
			lines[i] = fmt.Sprintf("%d -> %s", id, addr)
		}(i, id)
	}
	wg.Wait()

	for _, l := range lines {
		fmt.Fprintln(opts.out, l)
	}
	if failed > 0 {
		return errors.Newf("%d of %d stores failed to resolve", failed, len(ids))
	}
	return nil
}

// serveMetrics runs the /metrics endpoint in g until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, collector *metrics.Collector, port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	g.Go(func() error {
		logger.Info("metrics server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
}

// newCoordinatorClient picks the gRPC coordinator when an address is
// configured and the static store table otherwise.
func newCoordinatorClient(cfg *Config) (coordinator.Client, func(), error) {
	if cfg.Coordinator.Address == "" {
		c, err := coordinator.NewStaticClient(cfg.Coordinator.Stores)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}

	conn, err := grpc.NewClient(cfg.Coordinator.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to connect to coordinator %s", cfg.Coordinator.Address)
	}
	return coordinator.NewGrpcClient(conn), func() { _ = conn.Close() }, nil
}

func buildServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a coordinator serving the configured stores",
		Long:  "Serve the coordinator.stores table over gRPC so resolvers can use it as their coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return errors.Wrapf(err, "failed to listen on port %d", port)
			}
			return runServe(ctx, cfg, lis)
		},
	}

	cmd.Flags().IntVar(&port, "port", 50051, "Port to listen on")
	return cmd
}

// runServe serves the coordinator on lis until ctx is done.
func runServe(ctx context.Context, cfg *Config, lis net.Listener) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	source, err := coordinator.NewStaticClient(cfg.Coordinator.Stores)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer()
	server.Register(grpcServer, server.NewServer(source, logger))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("coordinator listening",
			zap.Stringer("addr", lis.Addr()),
			zap.Int("stores", source.Len()))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down coordinator")
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			showStatus(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	return cmd
}

func showStatus(out io.Writer, cfg *Config) {
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  ├─ Config File:       %s\n", configFile)
	fmt.Fprintf(out, "  ├─ Refresh Interval:  %s\n", cfg.Resolver.RefreshInterval)
	fmt.Fprintf(out, "  └─ Queue Size:        %d\n", cfg.Resolver.QueueSize)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Coordinator:")
	if cfg.Coordinator.Address != "" {
		fmt.Fprintf(out, "  └─ gRPC:              %s\n", cfg.Coordinator.Address)
	} else {
		fmt.Fprintf(out, "  └─ Static Stores:     %d\n", len(cfg.Coordinator.Stores))
		for _, s := range cfg.Coordinator.Stores {
			fmt.Fprintf(out, "     └─ %d  %-9s %s\n", s.ID, s.State, s.Address)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  └─ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Fprintln(out, "  └─ Disabled")
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
