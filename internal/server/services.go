package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/idlebattle/internal/game/session"
)

// GRPCService serves a gRPC server on a listener.
type GRPCService struct {
	srv *grpc.Server
	lis net.Listener
}

// NewGRPCService creates a GRPCService.
//
// Precondition: srv and lis must be non-nil; lis is owned by the service.
func NewGRPCService(srv *grpc.Server, lis net.Listener) *GRPCService {
	return &GRPCService{srv: srv, lis: lis}
}

// Addr returns the listener address.
func (g *GRPCService) Addr() net.Addr {
	return g.lis.Addr()
}

// Start serves until Stop is called.
func (g *GRPCService) Start() error {
	if err := g.srv.Serve(g.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop drains in-flight calls and stops the server.
func (g *GRPCService) Stop() {
	g.srv.GracefulStop()
}

// SessionService reaps idle live sessions while running. On Stop every
// remaining session is stopped so its result reaches the manager's sink.
type SessionService struct {
	mgr      *session.Manager
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSessionService creates a SessionService. An interval <= 0 disables
// reaping. timeout bounds the final stop of the remaining sessions.
//
// Precondition: mgr and logger must be non-nil.
func NewSessionService(mgr *session.Manager, interval, timeout time.Duration, logger *zap.Logger) *SessionService {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionService{
		mgr:      mgr,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start reaps until Stop is called.
func (s *SessionService) Start() error {
	defer close(s.done)
	if s.interval <= 0 {
		<-s.ctx.Done()
		return nil
	}
	s.mgr.Run(s.ctx, s.interval)
	return nil
}

// Stop ends reaping and stops every live session.
func (s *SessionService) Stop() {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	for _, id := range s.mgr.IDs() {
		if _, err := s.mgr.Stop(ctx, id); err != nil {
			s.logger.Warn("stopping session at shutdown", zap.String("session_id", id), zap.Error(err))
		}
	}
}

// Done is closed once Start has returned.
func (s *SessionService) Done() <-chan struct{} {
	return s.done
}
