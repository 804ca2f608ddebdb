package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "sqlite", cfg.Storage.Backend)
	require.Equal(t, "persona", cfg.Workflows.ProgressScope)
	require.Equal(t, time.Minute, cfg.Reminders.Interval)
	require.Equal(t, 60*time.Second, cfg.Reminders.Window)
	require.False(t, cfg.Reminders.CatchUp.Enabled)
	require.Equal(t, "/v0", cfg.Server.BasePath)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
storage:
  backend: memory
workflows:
  progress_scope: global
reminders:
  catch_up:
    enabled: true
    limit: 3
`))
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, "global", cfg.Workflows.ProgressScope)
	require.True(t, cfg.Reminders.CatchUp.Enabled)
	require.Equal(t, 3, cfg.Reminders.CatchUp.Limit)
	require.Equal(t, 24*time.Hour, cfg.Reminders.CatchUp.MaxAge)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":   "storage:\n  backend: floppy\n",
		"redis":     "storage:\n  backend: redis\n",
		"postgres":  "storage:\n  backend: postgres\n",
		"scope":     "workflows:\n  progress_scope: team\n",
		"interval":  "reminders:\n  interval: 0s\n",
		"desktop":   "notifications:\n  desktop: maybe\n",
		"webhook":   "notifications:\n  webhooks:\n    - secret: x\n",
		"mode":      "app:\n  default_mode: crowd\n",
		"catch-up":  "reminders:\n  catch_up:\n    enabled: true\n    max_age: 1s\n",
		"bad-yaml":  "storage: [",
		"base-path": "server:\n  base_path: v0\n",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Storage.Backend)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(Path(dir), []byte("log:\n  level: debug\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
}
