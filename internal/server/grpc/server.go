// Package grpc exposes the session service over gRPC: a hand-declared
// service descriptor using protobuf well-known types, an access-token
// interceptor, error mapping and the standard health service.
package grpc

import (
	"context"
	"errors"
	"net"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/jonathandlab/coyn/internal/logging"
	"github.com/jonathandlab/coyn/internal/server/linking"
	"github.com/jonathandlab/coyn/internal/server/models"
	"github.com/jonathandlab/coyn/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SessionManager is the credential lifecycle the transport needs.
type SessionManager interface {
	VerifyAccess(ctx context.Context, token string) (*services.Identity, error)
	Rotate(ctx context.Context, token string) (*services.TokenPair, error)
	Logout(ctx context.Context, token string) error
	RevokeAccess(ctx context.Context, token string) error
}

// UserManager covers registration, login and profile lookup.
type UserManager interface {
	Register(ctx context.Context, email, password string, roles ...string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Whoami(ctx context.Context, userID int64) (*models.User, error)
}

// Linker starts, completes and tears down account linking.
type Linker interface {
	CreateLinkToken(ctx context.Context, userID int64) (*linking.LinkToken, error)
	ExchangePublicToken(ctx context.Context, userID int64, publicToken string) (*linking.Item, error)
	InvalidateAccessTokens(ctx context.Context, userID int64, packed string) error
}

type GRPCServer struct {
	address  string
	sessions SessionManager
	users    UserManager
	linker   Linker
	logger   logging.Logger
	health   *health.Server
	metrics  *grpcprometheus.ServerMetrics
}

// NewGRPCServer builds the server. linker may be nil, in which case the
// linking methods answer Unimplemented.
func NewGRPCServer(addr string, l logging.Logger, sessions SessionManager, users UserManager, linker Linker) *GRPCServer {
	return &GRPCServer{
		address:  addr,
		sessions: sessions,
		users:    users,
		linker:   linker,
		logger:   l.With("module", "grpc_server"),
		health:   health.NewServer(),
	}
}

// WithMetrics registers per-method request counters on reg and records every
// unary call, including rejected ones.
func (s *GRPCServer) WithMetrics(reg prometheus.Registerer) *GRPCServer {
	s.metrics = grpcprometheus.NewServerMetrics()
	reg.MustRegister(s.metrics)
	return s
}

func (s *GRPCServer) newServer() *grpc.Server {
	unary := []grpc.UnaryServerInterceptor{s.loggingInterceptor, s.accessTokenInterceptor}
	if s.metrics != nil {
		unary = append([]grpc.UnaryServerInterceptor{s.metrics.UnaryServerInterceptor()}, unary...)
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary...),
	)
	srv.RegisterService(&ServiceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
	if s.metrics != nil {
		s.metrics.InitializeMetrics(srv)
	}
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			s.health.Shutdown()
			srv.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
