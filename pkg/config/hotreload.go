// HotReloader watches the configuration file on disk and re-validates +
// re-applies it without a process restart, so shard topology and
// validation policy changes can roll out live (SPEC_FULL.md §3). Grounded
// on the teacher's pkg/config/hotreload.go: kept its SHA-256
// content-hash-then-reload loop verbatim, retargeted at the new Config
// schema's own validation rules instead of the teacher's vnode/connection
// fields.
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback is invoked with the previous and newly-loaded
// configuration whenever a content change is detected and the new
// document passes validation.
type ReloadCallback func(old, new *Config) error

// HotReloader polls configPath on an interval and calls registered
// callbacks when its content changes.
type HotReloader struct {
	logger        *zap.Logger
	configPath    string
	currentConfig *Config
	currentHash   string
	callbacks     []ReloadCallback
	mu            sync.RWMutex
	checkInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// HotReloaderConfig configures NewHotReloader.
type HotReloaderConfig struct {
	ConfigPath    string
	CheckInterval time.Duration // default 10s
}

// NewHotReloader loads configPath once (failing fast on an invalid
// initial document, exactly as LoadConfig would at process startup) and
// returns a reloader ready to Start.
func NewHotReloader(logger *zap.Logger, cfg HotReloaderConfig) (*HotReloader, error) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	loaded, err := LoadConfig(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("hotreload: failed to load initial config: %w", err)
	}
	hash, err := fileHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("hotreload: failed to hash config: %w", err)
	}

	return &HotReloader{
		logger:        logger,
		configPath:    cfg.ConfigPath,
		currentConfig: loaded,
		currentHash:   hash,
		checkInterval: cfg.CheckInterval,
		stopCh:        make(chan struct{}),
	}, nil
}

// OnReload registers callback to run (in order) after a successful reload.
// A callback error is logged but does not stop subsequent callbacks or
// unwind the reload.
func (hr *HotReloader) OnReload(callback ReloadCallback) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.callbacks = append(hr.callbacks, callback)
}

// GetConfig returns the most recently loaded, valid configuration.
func (hr *HotReloader) GetConfig() *Config {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return hr.currentConfig
}

// Start polls for changes until ctx is canceled or Stop is called.
func (hr *HotReloader) Start(ctx context.Context) {
	ticker := time.NewTicker(hr.checkInterval)
	defer ticker.Stop()

	hr.logger.Info("config hot-reload started",
		zap.String("path", hr.configPath), zap.Duration("interval", hr.checkInterval))

	for {
		select {
		case <-ctx.Done():
			hr.logger.Info("config hot-reload stopped")
			return
		case <-hr.stopCh:
			hr.logger.Info("config hot-reload stopped")
			return
		case <-ticker.C:
			if err := hr.checkAndReload(); err != nil {
				hr.logger.Error("config hot-reload: check/reload failed", zap.Error(err))
			}
		}
	}
}

// Stop ends the Start loop. Safe to call more than once.
func (hr *HotReloader) Stop() {
	hr.stopOnce.Do(func() { close(hr.stopCh) })
}

// ForceReload re-checks the file immediately, bypassing the poll interval.
func (hr *HotReloader) ForceReload() error {
	return hr.checkAndReload()
}

func (hr *HotReloader) checkAndReload() error {
	newHash, err := fileHash(hr.configPath)
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}

	hr.mu.RLock()
	unchanged := newHash == hr.currentHash
	hr.mu.RUnlock()
	if unchanged {
		return nil
	}

	newConfig, err := LoadConfig(hr.configPath)
	if err != nil {
		hr.logger.Warn("config hot-reload: new document is invalid, keeping previous config", zap.Error(err))
		return fmt.Errorf("load new config: %w", err)
	}

	hr.mu.Lock()
	oldConfig := hr.currentConfig
	hr.currentConfig = newConfig
	hr.currentHash = newHash
	callbacks := append([]ReloadCallback(nil), hr.callbacks...)
	hr.mu.Unlock()

	hr.logger.Info("config hot-reload: change detected, reloaded")
	for _, callback := range callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			hr.logger.Error("config hot-reload: callback failed", zap.Error(err))
		}
	}
	return nil
}

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
