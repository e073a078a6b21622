package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env"
)

type Config struct {
	ServerAddr       string        `env:"RUN_ADDRESS"`
	LogLevel         string        `env:"LOG_LEVEL"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	JWTSecretKey     string        `env:"JWT_SECRET_KEY"`
	GatewayURL       string        `env:"OSMP_GATEWAY_ADDRESS"`
	GatewayTimeout   time.Duration `env:"OSMP_GATEWAY_TIMEOUT"`
	PlanupURL        string        `env:"PLANUP_ADDRESS"`
	PlanupTimeout    time.Duration `env:"PLANUP_TIMEOUT"`
	ReconConcurrency int           `env:"RECON_CONCURRENCY"`
}

func NewConfig() (Config, error) {
	cfg := Config{}

	flag.StringVar(&cfg.ServerAddr, "a", "0.0.0.0:8080", "server listening address [env:RUN_ADDRESS]")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log output level [env:LOG_LEVEL]")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database connection string [env:DATABASE_URI]")
	flag.StringVar(&cfg.JWTSecretKey, "s", "secretkey", "JWT secret to sign tokens [env:JWT_SECRET_KEY]")
	flag.StringVar(&cfg.GatewayURL, "g", "http://localhost:8081", "OSMP gateway URI [env:OSMP_GATEWAY_ADDRESS]")
	flag.DurationVar(&cfg.GatewayTimeout, "gt", 15*time.Second, "OSMP gateway request timeout [env:OSMP_GATEWAY_TIMEOUT]")
	flag.StringVar(&cfg.PlanupURL, "p", "http://localhost:8082", "Planup URI [env:PLANUP_ADDRESS]")
	flag.DurationVar(&cfg.PlanupTimeout, "pt", 30*time.Second, "Planup request timeout [env:PLANUP_TIMEOUT]")
	flag.IntVar(&cfg.ReconConcurrency, "c", 4, "reconciliation batch concurrency [env:RECON_CONCURRENCY]")
	flag.Parse()

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env.Parse: %w", err)
	}

	return cfg, nil
}
