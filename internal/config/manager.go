package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeHandler is invoked with the freshly reloaded configuration after the
// config file changes on disk and still validates.
type ChangeHandler func(cfg *Config)

// Manager watches the configuration file and hot-reloads runtime tunables.
// Only handlers decide what to apply; the manager never restarts components.
type Manager struct {
	path     string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	handlers []ChangeHandler
	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
}

// NewManager creates a manager watching the given config file path.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Manager{
		path:    path,
		logger:  logger,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnChange registers a handler called after each successful reload.
func (m *Manager) OnChange(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Start begins watching. Watching the parent directory instead of the file
// itself survives the rename-and-replace writes editors and configmap mounts
// produce.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	dir := filepath.Dir(m.path)
	if err := m.watcher.Add(dir); err != nil {
		return err
	}

	go m.loop(ctx)
	return nil
}

// Stop shuts the watcher down.
func (m *Manager) Stop() error {
	close(m.stopCh)
	return m.watcher.Close()
}

func (m *Manager) loop(ctx context.Context) {
	// Debounce bursts of write events from a single save.
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(250*time.Millisecond, m.reload)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) reload() {
	cfg, err := Load()
	if err != nil {
		m.logger.Warn("Config reload skipped, file invalid", zap.String("path", m.path), zap.Error(err))
		return
	}
	m.logger.Info("Configuration reloaded", zap.String("path", m.path))

	m.mu.Lock()
	handlers := make([]ChangeHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		h(cfg)
	}
}
