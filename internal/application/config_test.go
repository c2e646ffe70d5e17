package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCoordinatorConfig_OptionsForKnownClass(t *testing.T) {
	cfg := DefaultCoordinatorConfig()

	opts := cfg.OptionsFor(ClassLayout)
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.Equal(t, 2, opts.MaxRetries)
}

func TestCoordinatorConfig_OptionsForUnknownClassIsZeroValue(t *testing.T) {
	cfg := CoordinatorConfig{}
	opts := cfg.OptionsFor(ClassRender)
	assert.Equal(t, EnqueueOptions{}, opts)
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestFileConfigLoader_LoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
version: "1.0.0"
area_budget: 1500000
operations:
  elk_layout:
    timeout_seconds: 8
    max_retries: 1
render:
  fit_view: true
  theme: dark
`)
	loader, err := NewFileConfigLoader(path)
	require.NoError(t, err)

	var cfg CoordinatorConfig
	require.NoError(t, loader.Load(context.Background(), &cfg))

	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, 1500000.0, cfg.AreaBudget)
	assert.Equal(t, "dark", cfg.Render.Theme)
	assert.Equal(t, 8, cfg.Operations["elk_layout"].TimeoutSeconds)
}

func TestFileConfigLoader_RejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, `
version: "1.0.0"
not_a_real_field: true
`)
	loader, err := NewFileConfigLoader(path)
	require.NoError(t, err)

	var cfg CoordinatorConfig
	assert.Error(t, loader.Load(context.Background(), &cfg))
}

func TestFileConfigLoader_RejectsBadSemver(t *testing.T) {
	path := writeTempConfig(t, `
version: "not-a-version"
`)
	loader, err := NewFileConfigLoader(path)
	require.NoError(t, err)

	var cfg CoordinatorConfig
	assert.Error(t, loader.Load(context.Background(), &cfg))
}

func TestFileConfigLoader_WatchInvokesCallbackOnWrite(t *testing.T) {
	path := writeTempConfig(t, `
version: "1.0.0"
render:
  theme: light
`)
	loader, err := NewFileConfigLoader(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan *CoordinatorConfig, 1)
	stop, err := loader.Watch(ctx, &CoordinatorConfig{}, func(updated any) {
		cfg, ok := updated.(*CoordinatorConfig)
		if ok {
			select {
			case updates <- cfg:
			default:
			}
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte(`
version: "2.0.0"
render:
  theme: dark
`), 0o644))

	select {
	case cfg := <-updates:
		assert.Equal(t, "2.0.0", cfg.Version)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload callback")
	}
}
