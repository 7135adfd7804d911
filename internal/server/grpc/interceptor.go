package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/jonathandlab/coyn/internal/common"
	"github.com/jonathandlab/coyn/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey struct{}

// publicMethods do not require an access credential.
var publicMethods = map[string]bool{
	MethodRegister: true,
	MethodLogin:    true,
	MethodRefresh:  true,
	MethodLogout:   true,
}

const healthPrefix = "/grpc.health.v1.Health/"

// IdentityFromContext returns the identity attached by the access interceptor.
func IdentityFromContext(ctx context.Context) (*services.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*services.Identity)
	return id, ok && id != nil
}

func withIdentity(ctx context.Context, id *services.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// accessTokenFromMetadata reads "authorization: Bearer <token>" and falls back
// to the "access_token" key.
func accessTokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(common.AuthorizationHeaderName) {
		scheme, token, found := strings.Cut(strings.TrimSpace(v), " ")
		if found && strings.EqualFold(scheme, "bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if publicMethods[info.FullMethod] || strings.HasPrefix(info.FullMethod, healthPrefix) {
		return handler(ctx, req)
	}

	token := accessTokenFromMetadata(ctx)
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	id, err := s.sessions.VerifyAccess(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}
	return handler(withIdentity(ctx, id), req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	if code == codes.Internal || code == codes.Unavailable {
		s.logger.Error(ctx, "rpc failed", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
	} else {
		s.logger.Debug(ctx, "rpc", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
	}
	return resp, err
}
