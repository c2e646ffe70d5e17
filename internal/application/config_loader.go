package application

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileConfigLoader implements ports.ConfigLoader for a CoordinatorConfig
// backed by a YAML file on disk, with fsnotify-driven hot reload. Modeled
// on the teacher's strict-decode-then-validate GraphLoader pipeline, but
// for coordinator configuration rather than evaluation graphs.
type FileConfigLoader struct {
	path      string
	validator *validator.Validate
}

// NewFileConfigLoader creates a loader rooted at path.
func NewFileConfigLoader(path string) (*FileConfigLoader, error) {
	v := validator.New()
	if err := registerIngestionValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &FileConfigLoader{path: path, validator: v}, nil
}

// Load implements ports.ConfigLoader. config must be *CoordinatorConfig.
func (l *FileConfigLoader) Load(ctx context.Context, config any) error {
	cfg, ok := config.(*CoordinatorConfig)
	if !ok {
		return fmt.Errorf("FileConfigLoader.Load: expected *CoordinatorConfig, got %T", config)
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var parsed CoordinatorConfig
	if err := decoder.Decode(&parsed); err != nil {
		return fmt.Errorf("coordinator config decode failed: %w", err)
	}
	if err := l.validator.Struct(&parsed); err != nil {
		return fmt.Errorf("coordinator config validation failed: %w", err)
	}

	*cfg = parsed
	return nil
}

// Watch implements ports.ConfigLoader: it watches the underlying file for
// writes and re-runs Load, invoking callback with the freshly loaded
// *CoordinatorConfig on every change. The returned stop function closes
// the underlying fsnotify.Watcher.
func (l *FileConfigLoader) Watch(ctx context.Context, config any, callback func(any)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				var reloaded CoordinatorConfig
				if err := l.Load(ctx, &reloaded); err != nil {
					continue
				}
				callback(&reloaded)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
