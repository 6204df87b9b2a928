package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/leasebook/pkg/api"
	"github.com/pixperk/leasebook/pkg/clock"
	"github.com/pixperk/leasebook/pkg/config"
	"github.com/pixperk/leasebook/pkg/fsm"
	"github.com/pixperk/leasebook/pkg/gateway"
	"github.com/pixperk/leasebook/pkg/projection"
	"github.com/pixperk/leasebook/pkg/raft"
	"github.com/pixperk/leasebook/pkg/server"
	"github.com/pixperk/leasebook/pkg/storage"
	"github.com/pixperk/leasebook/pkg/transfer"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
)

func main() {
	fs := pflag.NewFlagSet("leasebook", pflag.ContinueOnError)
	config.AddFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.FromFlags(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "leasebook",
		Level: cfg.Level(),
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newClock(cfg config.Config) clock.Clock {
	if cfg.Clock.Mode != config.ClockManual {
		return clock.NewMonotonic()
	}
	start := types.Timestamp(cfg.Clock.Start)
	if start == 0 {
		start = types.Timestamp(time.Now().Unix())
	}
	return clock.NewManual(start)
}

func run(cfg config.Config, logger hclog.Logger) error {
	nid, generated, err := cfg.NodeUUID()
	if err != nil {
		return fmt.Errorf("invalid node id: %w", err)
	}
	if generated {
		logger.Info("generated node id", "node_id", nid)
	}

	logger.Info("starting leasebook node",
		"node_id", nid,
		"raft", cfg.RaftAddr,
		"grpc", cfg.GRPCAddr,
		"http", cfg.HTTPAddr,
		"data", cfg.DataDir,
		"bootstrap", cfg.Bootstrap,
		"clock", cfg.Clock.Mode,
	)

	journal, err := storage.OpenJournal(filepath.Join(cfg.DataDir, "journal"), logger.Named("journal"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	hooks := []fsm.Hook{journal}
	opts := server.Options{
		Clock:  newClock(cfg),
		Events: journal,
		Logger: logger.Named("server"),
	}

	if path := cfg.ProjectionPath(); path != "" {
		store, err := projection.Open(path, logger.Named("projection"))
		if err != nil {
			return fmt.Errorf("open projection: %w", err)
		}
		defer store.Close()

		hooks = append(hooks, store)
		opts.Index = store
	}

	node, err := raft.NewNode(&raft.Config{
		NodeID:        nid,
		BindAddr:      cfg.RaftAddr,
		AdvertiseAddr: cfg.AdvertiseAddr,
		DataDir:       filepath.Join(cfg.DataDir, "raft"),
		Bootstrap:     cfg.Bootstrap,
		Hooks:         hooks,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create raft node: %w", err)
	}
	defer node.Shutdown()
	opts.Node = node

	logger.Info("raft node initialized")

	balances, err := cfg.OpeningBalances()
	if err != nil {
		return err
	}
	accounts := transfer.NewAccounts()
	for p, amount := range balances {
		if err := accounts.Mint(p, amount); err != nil {
			return fmt.Errorf("mint %s: %w", p, err)
		}
	}
	opts.Accounts = accounts

	srv := server.NewServer(opts)

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(server.LoggingInterceptor(logger.Named("grpc"))))
	api.RegisterLeaseServiceServer(grpcServer, srv)

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()

	var gwServer *gateway.Server
	if cfg.HTTPAddr != "" {
		gwServer = gateway.NewServer(cfg.HTTPAddr, srv, logger.Named("gateway"))
		go func() {
			logger.Info("HTTP gateway listening", "addr", cfg.HTTPAddr)
			if err := gwServer.Start(context.Background()); err != nil {
				errCh <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("leasebook is ready")

	select {
	case sig := <-sigCh:
		logger.Info("shutting down gracefully", "signal", sig)
	case err = <-errCh:
		logger.Error("server stopped", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if gwServer != nil {
		if serr := gwServer.Stop(ctx); serr != nil {
			logger.Warn("gateway shutdown", "error", serr)
		}
	}

	logger.Info("shutdown complete")
	return err
}
