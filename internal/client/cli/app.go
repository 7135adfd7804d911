// Package cli implements coynctl, a small command-line client for the
// session service: register, login, refresh, logout, whoami and account
// linking.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jonathandlab/coyn/internal/client/config"
	"github.com/jonathandlab/coyn/internal/common"
	gs "github.com/jonathandlab/coyn/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var errUsage = errors.New("usage: coynctl [flags] register|login|refresh|logout|whoami|link|exchange|unlink [args]")

type App struct {
	config *config.Config
	client *gs.Client
	in     *bufio.Reader
	out    io.Writer
}

func NewApp(cfg *config.Config, cc grpc.ClientConnInterface, in io.Reader, out io.Writer) *App {
	return &App{
		config: cfg,
		client: gs.NewClient(cc),
		in:     bufio.NewReader(in),
		out:    out,
	}
}

// Run executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "register":
		return a.register(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "refresh":
		return a.refresh(ctx, rest)
	case "logout":
		return a.logout(ctx, rest)
	case "whoami":
		return a.print(a.client.Whoami(a.authorized(ctx)))
	case "link":
		return a.print(a.client.CreateLinkToken(a.authorized(ctx)))
	case "exchange":
		token, err := a.arg(rest, "Public token")
		if err != nil {
			return err
		}
		return a.print(a.client.ExchangePublicToken(a.authorized(ctx), token))
	case "unlink":
		return a.unlink(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func (a *App) authorized(ctx context.Context) context.Context {
	if a.config.AccessToken == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, "Bearer "+a.config.AccessToken)
}

// arg returns the first operand or prompts for it.
func (a *App) arg(rest []string, prompt string) (string, error) {
	if len(rest) > 0 && strings.TrimSpace(rest[0]) != "" {
		return strings.TrimSpace(rest[0]), nil
	}
	return GetSimpleText(a.in, prompt, a.out)
}

func (a *App) credentials(rest []string, confirm bool) (*structpb.Struct, error) {
	email, err := a.arg(rest, "Email")
	if err != nil {
		return nil, err
	}
	var pw []byte
	if confirm {
		pw, err = GetNewPassword(a.out)
	} else {
		pw, err = GetPassword(a.out, "Enter password")
	}
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{"email": email, "password": string(pw)})
}

func (a *App) register(ctx context.Context, rest []string) error {
	req, err := a.credentials(rest, true)
	if err != nil {
		return err
	}
	return a.print(a.client.Register(ctx, req))
}

func (a *App) login(ctx context.Context, rest []string) error {
	req, err := a.credentials(rest, false)
	if err != nil {
		return err
	}
	return a.print(a.client.Login(ctx, req))
}

func (a *App) refresh(ctx context.Context, rest []string) error {
	token, err := a.arg(rest, "Refresh token")
	if err != nil {
		return err
	}
	return a.print(a.client.Refresh(ctx, token))
}

func (a *App) logout(ctx context.Context, rest []string) error {
	token, err := a.arg(rest, "Refresh token")
	if err != nil {
		return err
	}
	if err := a.client.Logout(a.authorized(ctx), token); err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, "logged out")
	return err
}

// unlink invalidates item access tokens given as "item=token" operands or as
// one packed "item=token,item=token" list.
func (a *App) unlink(ctx context.Context, rest []string) error {
	packed := strings.Join(rest, ",")
	if strings.TrimSpace(packed) == "" {
		var err error
		if packed, err = GetSimpleText(a.in, "Item access tokens (item=token,...)", a.out); err != nil {
			return err
		}
	}
	if err := a.client.InvalidateAccessTokens(a.authorized(ctx), packed); err != nil {
		return err
	}
	_, err := fmt.Fprintln(a.out, "unlinked")
	return err
}

func (a *App) print(msg proto.Message, err error) error {
	if err != nil {
		return err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}
