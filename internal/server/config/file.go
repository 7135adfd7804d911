package config

import (
	"github.com/jonathandlab/coyn/internal/flagx"
	"github.com/spf13/viper"
)

const envPrefix = "COYN"

var fileKeys = []string{
	"endpoint_addr_grpc",
	"metrics_addr",
	"database_dsn",
	"secret_key",
	"access_token_validity_duration",
	"refresh_token_validity_duration",
	"log_backend",
	"log_level",
	"plaid_base_url",
	"plaid_client_id",
	"plaid_secret",
	"plaid_client_name",
	"otlp_endpoint",
	"trace_sample_ratio",
}

// parseFile overlays values from the config file named by -c/-config (any
// format viper understands) and from COYN_<KEY> environment variables.
// Only keys that are actually set replace what is already in config.
// Durations accept Go syntax such as "3m". An unreadable or invalid file
// panics, matching how flag errors are treated.
func parseFile(config *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	for _, k := range fileKeys {
		_ = v.BindEnv(k)
	}

	if path := flagx.ConfigFileFlag(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			panic(err)
		}
	}

	setString(v, "endpoint_addr_grpc", &config.EndpointAddrGRPC)
	setString(v, "metrics_addr", &config.MetricsAddr)
	setString(v, "database_dsn", &config.DatabaseDSN)
	setString(v, "secret_key", &config.SecretKey)
	setString(v, "log_backend", &config.LogBackend)
	setString(v, "log_level", &config.LogLevel)
	setString(v, "plaid_base_url", &config.PlaidBaseURL)
	setString(v, "plaid_client_id", &config.PlaidClientID)
	setString(v, "plaid_secret", &config.PlaidSecret)
	setString(v, "plaid_client_name", &config.PlaidClientName)
	setString(v, "otlp_endpoint", &config.OTLPEndpoint)

	if v.IsSet("trace_sample_ratio") {
		config.TraceSampleRatio = v.GetFloat64("trace_sample_ratio")
	}

	if v.IsSet("access_token_validity_duration") {
		config.AccessTokenValidityDuration = v.GetDuration("access_token_validity_duration")
	}
	if v.IsSet("refresh_token_validity_duration") {
		config.RefreshTokenValidityDuration = v.GetDuration("refresh_token_validity_duration")
	}
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}
