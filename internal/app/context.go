package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"complyflow/internal/config"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COMPLYFLOW_"

// LoadEnv loads <workspace>/.env if present. Variables already set win.
func LoadEnv(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ResolveConfig reads complyflow.yml from workspace, falling back to defaults,
// and applies environment overrides from getenv before validating.
func ResolveConfig(workspace string, getenv func(string) string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	override := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(EnvPrefix + name)); v != "" {
			*dst = v
		}
	}
	override("STORAGE_BACKEND", &cfg.Storage.Backend)
	override("REDIS_ADDR", &cfg.Storage.RedisAddr)
	override("POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	override("JWT_SECRET", &cfg.Server.JWTSecret)
	override("LOG_LEVEL", &cfg.Log.Level)
	override("APP_MODE", &cfg.App.DefaultMode)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ActorID returns the acting user for local commands.
func ActorID(flag string) string {
	if id := strings.TrimSpace(flag); id != "" {
		return id
	}
	return "local-user"
}
