// Package config loads settings shared by the appfw commands from an
// optional YAML file and APPFW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"go-appfw/internal/logging"
	"go-appfw/internal/transport"
)

// Transport kinds.
const (
	TransportRedis     = "redis"
	TransportWebSocket = "websocket"
)

// Config holds the client and relay settings.
type Config struct {
	ConfigFile string

	Transport string
	Prefix    string
	AppID     string
	Debug     []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RelayURL string

	Listen   string
	Store    string
	Manifest string

	Log logging.Config
}

// Load reads configuration in order of precedence: environment variables,
// the config file at path (if non-empty), then defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APPFW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		ConfigFile:    v.ConfigFileUsed(),
		Transport:     strings.ToLower(v.GetString("transport")),
		Prefix:        v.GetString("prefix"),
		AppID:         v.GetString("appid"),
		Debug:         splitList(v.GetStringSlice("debug")),
		RedisAddr:     v.GetString("redis.addr"),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),
		RelayURL:      v.GetString("relay.url"),
		Listen:        v.GetString("relay.listen"),
		Store:         strings.ToLower(v.GetString("relay.store")),
		Manifest:      v.GetString("relay.manifest"),
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", TransportRedis)
	v.SetDefault("prefix", transport.DefaultPrefix)
	v.SetDefault("appid", "")
	v.SetDefault("debug", []string{})
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("relay.url", "ws://localhost:7070/ws")
	v.SetDefault("relay.listen", ":7070")
	v.SetDefault("relay.store", "memory")
	v.SetDefault("relay.manifest", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks that the selected transport and store are known.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportRedis:
		if c.RedisAddr == "" {
			return errors.New("config: redis transport needs redis.addr")
		}
	case TransportWebSocket:
		if c.RelayURL == "" {
			return errors.New("config: websocket transport needs relay.url")
		}
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	switch c.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown relay store %q", c.Store)
	}
	return nil
}

// RedisOptions returns connection options for the configured server.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}
