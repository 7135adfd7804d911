package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathandlab/coyn/internal/client/cli"
	"github.com/jonathandlab/coyn/internal/client/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, args, err := config.LoadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(cfg.ServerEndpointAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.NewApp(cfg, conn, os.Stdin, os.Stdout).Run(ctx, args)
}
