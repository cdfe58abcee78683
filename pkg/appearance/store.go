package appearance

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Load reads a TOML file over Default, so omitted keys keep their defaults.
func Load(path string) (Appearance, error) {
	a := Default()
	if _, err := toml.DecodeFile(path, &a); err != nil {
		return Appearance{}, fmt.Errorf("decode appearance %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return Appearance{}, fmt.Errorf("appearance %s: %w", path, err)
	}
	return a, nil
}

// Store holds the current Appearance for concurrent readers.
type Store struct {
	mu      sync.RWMutex
	current Appearance
}

// NewStore returns a Store initialised with a.
func NewStore(a Appearance) *Store {
	return &Store{current: a}
}

// Get returns the current appearance.
func (s *Store) Get() Appearance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set changes a single field.
func (s *Store) Set(field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current
	if err := next.Set(field, value); err != nil {
		return err
	}
	s.current = next
	return nil
}

// Replace swaps in a after validating it.
func (s *Store) Replace(a Appearance) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = a
	s.mu.Unlock()
	return nil
}

// Watch reloads path into the store whenever it changes, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are picked up. An invalid file is logged and the previous value kept.
func (s *Store) Watch(ctx context.Context, path string, logger *zap.Logger) error {
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			a, err := Load(path)
			if err != nil {
				logger.Warn("keeping previous appearance", zap.String("path", path), zap.Error(err))
				continue
			}
			s.mu.Lock()
			s.current = a
			s.mu.Unlock()
			logger.Info("appearance reloaded", zap.String("path", path))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("appearance watcher error", zap.Error(err))
		}
	}
}
