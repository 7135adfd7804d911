package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a thin typed client for coyn.v1.SessionService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodRegister, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodLogin, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodRefresh, wrapperspb.String(refreshToken), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodLogout, wrapperspb.String(refreshToken), new(emptypb.Empty), opts...)
}

func (c *Client) Whoami(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodWhoami, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateLinkToken(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodCreateLinkToken, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodExchangePublicToken, wrapperspb.String(publicToken), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// InvalidateAccessTokens takes a packed "item=token,item=token" list.
func (c *Client) InvalidateAccessTokens(ctx context.Context, packed string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodInvalidateAccessTokens, wrapperspb.String(packed), new(emptypb.Empty), opts...)
}
