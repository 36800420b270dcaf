package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

// ChannelFile is the YAML channel and rule definition used when channels are
// managed outside the database.
type ChannelFile struct {
	Channels []models.ChannelConfig `yaml:"channels"`
	Rules    []models.AlertRule     `yaml:"rules"`
}

// LoadChannelFile reads and validates the channel file at path. Channels
// without an id get one derived from their name so ids stay stable across
// reloads.
func LoadChannelFile(path string) (*ChannelFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel file: %w", err)
	}

	var f ChannelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse channel file %s: %w", path, err)
	}

	for i := range f.Channels {
		ch := &f.Channels[i]
		if ch.Type == "" {
			return nil, fmt.Errorf("channel %q has no type", ch.Name)
		}
		if ch.ID == uuid.Nil {
			ch.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(ch.Type+"/"+ch.Name))
		}
	}
	for _, r := range f.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %q has no id", r.Name)
		}
		if !r.Severity.Valid() {
			return nil, fmt.Errorf("rule %s has invalid severity %q", r.ID, r.Severity)
		}
	}
	return &f, nil
}

// WatchChannelFile calls onChange with the reloaded file each time path is
// written or replaced. It watches the parent directory so atomic saves, which
// rename a new file over path, keep being seen. A file that fails to load is
// logged and skipped, leaving the previous configuration in place. It blocks
// until ctx is cancelled.
func WatchChannelFile(ctx context.Context, path string, logger *logging.Logger, onChange func(*ChannelFile)) error {
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	logger.Infof("Watching channel file %s", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			// A rename onto path shows up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			f, err := LoadChannelFile(path)
			if err != nil {
				logger.Errorf("Channel file reload failed, keeping previous config: %v", err)
				continue
			}
			logger.Infof("Channel file %s reloaded", path)
			onChange(f)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("Channel file watcher error: %v", err)
		}
	}
}
