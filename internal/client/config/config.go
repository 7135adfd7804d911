// Package config holds settings for the coynctl command-line client.
package config

import (
	"flag"
	"io"
	"os"
	"time"
)

// Config holds runtime settings for coynctl.
//
// Fields:
//   - ServerEndpointAddr: host:port of the gRPC endpoint.
//   - Timeout: per-call deadline.
//   - AccessToken: access credential sent as a bearer token on protected calls.
type Config struct {
	ServerEndpointAddr string
	Timeout            time.Duration
	AccessToken        string
}

// LoadDefaults populates c with defaults. The access token defaults to
// COYN_ACCESS_TOKEN.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.Timeout = 10 * time.Second
	c.AccessToken = os.Getenv("COYN_ACCESS_TOKEN")
}

// LoadConfig applies defaults and then flags from args, and returns the
// remaining positional arguments (the command and its operands).
func LoadConfig(args []string, stderr io.Writer) (*Config, []string, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fs := flag.NewFlagSet("coynctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "server gRPC address")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-call timeout")
	fs.StringVar(&cfg.AccessToken, "token", cfg.AccessToken, "access token for protected calls")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}
