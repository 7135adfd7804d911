package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "coyn.v1.SessionService"

// Full method names, as seen by interceptors.
const (
	MethodRegister               = "/" + ServiceName + "/Register"
	MethodLogin                  = "/" + ServiceName + "/Login"
	MethodRefresh                = "/" + ServiceName + "/Refresh"
	MethodLogout                 = "/" + ServiceName + "/Logout"
	MethodWhoami                 = "/" + ServiceName + "/Whoami"
	MethodCreateLinkToken        = "/" + ServiceName + "/CreateLinkToken"
	MethodExchangePublicToken    = "/" + ServiceName + "/ExchangePublicToken"
	MethodInvalidateAccessTokens = "/" + ServiceName + "/InvalidateAccessTokens"
)

// sessionServer is the handler set behind ServiceDesc. Messages are protobuf
// well-known types so no generated code is needed on either side.
type sessionServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Logout(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Whoami(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CreateLinkToken(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ExchangePublicToken(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	InvalidateAccessTokens(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// ServiceDesc describes coyn.v1.SessionService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*sessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", sessionServer.Register),
		unary("Login", sessionServer.Login),
		unary("Refresh", sessionServer.Refresh),
		unary("Logout", sessionServer.Logout),
		unary("Whoami", sessionServer.Whoami),
		unary("CreateLinkToken", sessionServer.CreateLinkToken),
		unary("ExchangePublicToken", sessionServer.ExchangePublicToken),
		unary("InvalidateAccessTokens", sessionServer.InvalidateAccessTokens),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coyn/v1/session.proto",
}

func unary[Req, Resp any](name string, call func(sessionServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(sessionServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(sessionServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
