package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	statuspb "ringelect/api/status"
	"ringelect/config"
)

const stopTimeout = 10 * time.Second

// Server represents the gRPC status server
type Server struct {
	config config.StatusConfig
	grpc   *grpc.Server
	log    *zap.Logger

	statusService *StatusService
}

// NewServer creates a new server instance
func NewServer(cfg config.StatusConfig, src StatusSource, outcomes OutcomeLister, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Second,
			MaxConnectionAge:      30 * time.Second,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  5 * time.Second,
			Timeout:               1 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(1 << 20),
		grpc.MaxSendMsgSize(4 << 20),
	}

	s := &Server{
		config:        cfg,
		grpc:          grpc.NewServer(opts...),
		log:           log.Named("status"),
		statusService: NewStatusService(src, outcomes),
	}
	statuspb.RegisterStatusServiceServer(s.grpc, s.statusService)
	return s
}

// Start listens on the configured address and serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	address := s.config.Addr()
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.log.Info("status server listening", zap.String("addr", listener.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(listener) }()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		return err
	}
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Stop stops the server gracefully
func (s *Server) Stop() error {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("status server stopped")
	case <-time.After(stopTimeout):
		s.log.Warn("force stopping status server")
		s.grpc.Stop()
	}
	return nil
}
