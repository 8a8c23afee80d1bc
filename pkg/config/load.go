package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

const (
	EnvConfigPath = "KEYSCAN_CONFIG"
	EnvStoreAddrs = "KEYSCAN_STORE_ADDRS"
	EnvZKServers  = "ZK_SERVERS"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load читает YAML поверх Default(). Если файла нет, берётся Default().
// Пустой path заменяется на $KEYSCAN_CONFIG. Переменные окружения
// перекрывают адреса из файла. Результат валидируется.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Info("config file not found, using default config", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvStoreAddrs); v != "" {
		cfg.Store.Addrs = splitList(v)
	}
	if v := os.Getenv(EnvZKServers); v != "" {
		cfg.Topology.ZKServers = splitList(v)
	}
}

// Validate проверяет validate-теги.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Store.Kind == "memory" && len(cfg.Store.NodeAddrs()) == 0 {
		return fmt.Errorf("invalid config: memory store needs addrs or memory.nodes")
	}
	if cfg.Topology.Source == "cluster" && cfg.Store.Kind != "redis" {
		return fmt.Errorf("invalid config: topology source cluster needs the redis store")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
