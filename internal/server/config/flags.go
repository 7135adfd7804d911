package config

import (
	"flag"
	"os"
	"time"

	"github.com/jonathandlab/coyn/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-m string   metrics bind address
//	-d string   PostgreSQL DSN
//	-s string   HMAC signing secret
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-l string   log level
//	-b string   log backend (slog|zap)
//
// Duration flags are whole minutes. A sub-minute value coming from the file
// survives when the flag is not given.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-m", "-d", "-s", "-t", "-r", "-l", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port for metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	accessMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshMinutes := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogBackend, "b", config.LogBackend, "log backend")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessMinutes) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshMinutes) * time.Minute
		}
	})
}
