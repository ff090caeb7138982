package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vultisig/trigger-plugin/api"
	"github.com/vultisig/trigger-plugin/internal/governor"
	"github.com/vultisig/trigger-plugin/internal/scheduler"
	"github.com/vultisig/trigger-plugin/internal/signer"
	"github.com/vultisig/trigger-plugin/service"
	"github.com/vultisig/trigger-plugin/storage"
)

type Config struct {
	Server api.ServerConfig    `mapstructure:"server" json:"server"`
	Redis  storage.RedisConfig `mapstructure:"redis" json:"redis,omitempty"`

	Datadog struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port string `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"datadog" json:"datadog"`

	Engine struct {
		service.EngineConfig `mapstructure:",squash"`
		LockTTLSeconds       int64 `mapstructure:"lock_ttl_seconds" json:"lock_ttl_seconds,omitempty"`
	} `mapstructure:"engine" json:"engine"`

	// Chains maps a network name to its RPC endpoint.
	Chains map[string]string `mapstructure:"chains" json:"chains,omitempty"`
	// Quote is decoded by the quote provider itself.
	Quote map[string]interface{} `mapstructure:"quote" json:"quote,omitempty"`

	Signer    signer.Config         `mapstructure:"signer" json:"signer"`
	Governor  governor.Config       `mapstructure:"governor" json:"governor,omitempty"`
	Scheduler scheduler.Config      `mapstructure:"scheduler" json:"scheduler,omitempty"`
	Archive   storage.ArchiveConfig `mapstructure:"archive" json:"archive,omitempty"`
}

func GetConfigure() (*Config, error) {
	// .env is optional, real environment variables win over it.
	_ = godotenv.Load()

	configName := os.Getenv("VS_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}

	return ReadConfig(configName, ".")
}

func ReadConfig(configName string, paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.database.dsn", "")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("datadog.host", "localhost")
	v.SetDefault("datadog.port", "8125")
	v.SetDefault("engine.gas_margin_percent", 10)
	v.SetDefault("engine.lock_ttl_seconds", 300)
	v.SetDefault("scheduler.spec", scheduler.DefaultSpec)
	v.SetDefault("signer.timeout_seconds", 30)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}
