package app_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"complyflow/internal/app"
)

func TestResolveConfigAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "complyflow.yml"), []byte("log:\n  level: debug\n"), 0o644))

	env := map[string]string{
		"COMPLYFLOW_STORAGE_BACKEND": "redis",
		"COMPLYFLOW_REDIS_ADDR":      "localhost:6379",
		"COMPLYFLOW_JWT_SECRET":      "s3cret",
	}
	cfg, err := app.ResolveConfig(dir, func(k string) string { return env[k] })
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Storage.Backend)
	require.Equal(t, "localhost:6379", cfg.Storage.RedisAddr)
	require.Equal(t, "s3cret", cfg.Server.JWTSecret)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestResolveConfigValidatesOverrides(t *testing.T) {
	_, err := app.ResolveConfig(t.TempDir(), func(k string) string {
		if k == "COMPLYFLOW_STORAGE_BACKEND" {
			return "postgres"
		}
		return ""
	})
	require.ErrorContains(t, err, "postgres_dsn is required")
}

func TestLoadEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COMPLYFLOW_TEST_A=file\nCOMPLYFLOW_TEST_B=file\n"), 0o644))
	t.Setenv("COMPLYFLOW_TEST_A", "shell")
	t.Setenv("COMPLYFLOW_TEST_B", "")
	os.Unsetenv("COMPLYFLOW_TEST_B")

	require.NoError(t, app.LoadEnv(dir))
	require.Equal(t, "shell", os.Getenv("COMPLYFLOW_TEST_A"))
	require.Equal(t, "file", os.Getenv("COMPLYFLOW_TEST_B"))
	require.NoError(t, app.LoadEnv(t.TempDir()))
	require.Equal(t, "local-user", app.ActorID(" "))
}
