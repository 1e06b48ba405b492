// Package config implements the two-layer configuration design of spec §9:
// the supervisor process reads a richer, file-or-env config via viper
// (supervisor.go), while a forked worker re-derives its own
// much smaller config straight from its inherited environment via
// caarlos0/env, validated with go-playground/validator. Grounded on
// taibuivan-yomira's platform/config package and aras-group-co-aras-auth's
// envPrefix-sectioned Config struct.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// WorkerConfig holds the handful of values a forked worker needs that are
// not already carried by the supervisor's ExtraFiles/COREHTTP_WORKER_*
// inheritance (spec §4.6's "no ambient globals are required in the
// worker" — this is the narrow exception: values cheap enough to pass as
// plain environment strings rather than shared memory or an FD).
type WorkerConfig struct {
	Mode       string `env:"COREHTTP_MODE" envDefault:"http" validate:"oneof=http queue"`
	ServerName string `env:"COREHTTP_SERVER_NAME" envDefault:"localhost"`
	ServerPort string `env:"COREHTTP_SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"COREHTTP_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	ChunkSize  int    `env:"COREHTTP_CHUNK_SIZE" envDefault:"4096" validate:"min=1,max=1048576"`
	RedisAddr  string `env:"COREHTTP_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	InboundKey string `env:"COREHTTP_QUEUE_INBOUND_KEY" envDefault:"corehttp:inbound"`
	OutboundKey string `env:"COREHTTP_QUEUE_OUTBOUND_KEY" envDefault:"corehttp:outbound"`
}

var validate = validator.New()

// LoadWorkerConfig parses WorkerConfig from the process environment and
// validates bounds (spec §9's ambient config-validation layer).
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing worker environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid worker configuration: %w", err)
	}
	return cfg, nil
}
