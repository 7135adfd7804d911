package grpc

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jonathandlab/coyn/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func pairToStruct(p *services.TokenPair) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"access_token":       p.AccessToken,
		"refresh_token":      p.RefreshToken,
		"access_expires_at":  p.AccessExpiresAt.UTC().Format(time.RFC3339),
		"refresh_expires_at": p.RefreshExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := s.users.Register(ctx, stringField(req, "email"), stringField(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"id":    strconv.FormatInt(user.ID, 10),
		"email": user.Email,
	})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pair, err := s.users.Login(ctx, stringField(req, "email"), stringField(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}
	return pairToStruct(pair)
}

func (s *GRPCServer) Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	pair, err := s.sessions.Rotate(ctx, strings.TrimSpace(req.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return pairToStruct(pair)
}

// Logout revokes the refresh chain and, when the call also carries an access
// credential, denylists that credential.
func (s *GRPCServer) Logout(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.sessions.Logout(ctx, strings.TrimSpace(req.GetValue())); err != nil {
		return nil, toStatus(err)
	}
	if token := accessTokenFromMetadata(ctx); token != "" {
		if err := s.sessions.RevokeAccess(ctx, token); err != nil {
			s.logger.Warn(ctx, "access credential not revoked on logout", "error", err)
		}
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Whoami(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	user, err := s.users.Whoami(ctx, id.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	roles := make([]any, len(id.Roles))
	for i, r := range id.Roles {
		roles[i] = r
	}
	return structpb.NewStruct(map[string]any{
		"id":    strconv.FormatInt(user.ID, 10),
		"email": user.Email,
		"roles": roles,
	})
}

func (s *GRPCServer) CreateLinkToken(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.linker == nil {
		return nil, status.Error(codes.Unimplemented, "account linking is not configured")
	}
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	lt, err := s.linker.CreateLinkToken(ctx, id.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]any{"link_token": lt.Token}
	if !lt.Expiration.IsZero() {
		out["expiration"] = lt.Expiration.UTC().Format(time.RFC3339)
	}
	return structpb.NewStruct(out)
}

func (s *GRPCServer) ExchangePublicToken(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s.linker == nil {
		return nil, status.Error(codes.Unimplemented, "account linking is not configured")
	}
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	item, err := s.linker.ExchangePublicToken(ctx, id.UserID, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"item_id":      item.ItemID,
		"access_token": item.AccessToken,
	})
}

func (s *GRPCServer) InvalidateAccessTokens(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if s.linker == nil {
		return nil, status.Error(codes.Unimplemented, "account linking is not configured")
	}
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	if err := s.linker.InvalidateAccessTokens(ctx, id.UserID, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}
