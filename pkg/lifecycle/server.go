package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/clusterwatch/pkg/grpc"
	"go.uber.org/zap"
)

const (
	MaxRecvSize       = 4 * 1024 * 1024 // 4MB
	MaxSendSize       = 4 * 1024 * 1024 // 4MB
	ShutdownTimeout   = 10 * time.Second
	ReadHeaderTimeout = 10 * time.Second
)

var errNoService = errors.New("no service to run")

// Service defines the interface that all services must implement.
type Service interface {
	Start(context.Context) error
	Stop(context.Context) error
}

// ServerOptions holds configuration for creating a server.
type ServerOptions struct {
	// HTTPAddr serves HTTPHandler when both are set.
	HTTPAddr    string
	HTTPHandler http.Handler

	// GRPCAddr serves grpc.health.v1 when set.
	GRPCAddr string

	ServiceName string
	Service     Service
	Logger      *zap.Logger

	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// RunServer starts the service and its servers, then blocks until a signal
// arrives, ctx is cancelled or a component fails. Everything is shut down
// within ShutdownTimeout before it returns.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	if opts == nil || opts.Service == nil {
		return errNoService
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger = logger.With(zap.String("service", opts.ServiceName))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, signals...)

	defer signal.Stop(sigChan)

	logger.Info("Starting service")

	if err := opts.Service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	errChan := make(chan error, 2)

	grpcServer, err := setupGRPCServer(opts, logger)
	if err != nil {
		stopService(opts.Service, logger)

		return fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Start(); err != nil {
				errChan <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	var httpServer *http.Server

	if opts.HTTPAddr != "" && opts.HTTPHandler != nil {
		httpServer = &http.Server{
			Addr:              opts.HTTPAddr,
			Handler:           opts.HTTPHandler,
			ReadHeaderTimeout: ReadHeaderTimeout,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		go func() {
			logger.Info("Starting HTTP server", zap.String("addr", opts.HTTPAddr))

			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}

	return handleShutdown(ctx, cancel, opts, logger, httpServer, grpcServer, sigChan, errChan)
}

func setupGRPCServer(opts *ServerOptions, logger *zap.Logger) (*grpc.Server, error) {
	if opts.GRPCAddr == "" {
		return nil, nil
	}

	grpcServer := grpc.NewServer(opts.GRPCAddr,
		grpc.WithLogger(logger),
		grpc.WithMaxRecvSize(MaxRecvSize),
		grpc.WithMaxSendSize(MaxSendSize),
	)

	if err := grpcServer.RegisterHealthServer(); err != nil {
		return nil, err
	}

	if opts.ServiceName != "" {
		grpcServer.SetServing(opts.ServiceName, true)
	}

	return grpcServer, nil
}

func handleShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	opts *ServerOptions,
	logger *zap.Logger,
	httpServer *http.Server,
	grpcServer *grpc.Server,
	sigChan <-chan os.Signal,
	errChan <-chan error) error {
	var runErr error

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, initiating shutdown", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("Component failed, initiating shutdown", zap.Error(err))
		runErr = fmt.Errorf("service error: %w", err)
	case <-ctx.Done():
		logger.Info("Context canceled, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	cancel()

	if grpcServer != nil {
		grpcServer.SetServing(opts.ServiceName, false)
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown failed", zap.Error(err))
		}
	}

	if grpcServer != nil {
		grpcServer.Stop(shutdownCtx)
	}

	if err := opts.Service.Stop(shutdownCtx); err != nil {
		logger.Error("Error during service shutdown", zap.Error(err))

		return errors.Join(runErr, fmt.Errorf("shutdown error: %w", err))
	}

	logger.Info("Service stopped")

	return runErr
}

func stopService(svc Service, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := svc.Stop(ctx); err != nil {
		logger.Error("Error during service shutdown", zap.Error(err))
	}
}
