package config

import (
	"time"

	"github.com/ironclaw/core/internal/ratelimit"
)

type ServerConfig struct {
	Host        string `yaml:"host"`
	GRPCPort    int    `yaml:"grpc_port"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`

	// RateLimit throttles the OpenAI-compatible HTTP surface per caller
	// (API key + remote address). Disabled unless rate_limit.enabled is
	// set, since most deployments sit behind their own edge throttle.
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
