package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// PolicySource holds the active sync policy. It is safe for concurrent use.
type PolicySource struct {
	current atomic.Pointer[SyncPolicy]
}

// NewPolicySource creates a source seeded with policy
func NewPolicySource(policy SyncPolicy) *PolicySource {
	s := &PolicySource{}
	s.Store(policy)
	return s
}

// Current returns the active policy
func (s *PolicySource) Current() SyncPolicy {
	return *s.current.Load()
}

// Store replaces the active policy
func (s *PolicySource) Store(policy SyncPolicy) {
	s.current.Store(&policy)
}

// PolicyWatcher polls the sync policy file and swaps the policy in a
// PolicySource when the file changes.
type PolicyWatcher struct {
	cfg    *Config
	source *PolicySource
	logger *slog.Logger

	mu      sync.Mutex
	modTime time.Time
	size    int64
}

// NewPolicyWatcher creates a watcher for cfg.SyncPolicyFile
func NewPolicyWatcher(cfg *Config, source *PolicySource, logger *slog.Logger) *PolicyWatcher {
	w := &PolicyWatcher{
		cfg:    cfg,
		source: source,
		logger: logger,
	}

	if info, err := os.Stat(cfg.SyncPolicyFile); err == nil {
		w.modTime = info.ModTime()
		w.size = info.Size()
	}

	return w
}

// Enabled reports whether there is a file to watch and a positive interval
func (w *PolicyWatcher) Enabled() bool {
	return w.cfg.SyncPolicyFile != "" && w.cfg.PolicyReloadInterval > 0
}

// Run polls until ctx is done. It returns immediately when the watcher is disabled.
func (w *PolicyWatcher) Run(ctx context.Context) {
	if !w.Enabled() {
		w.logger.Debug("Sync policy reload disabled")
		return
	}

	w.logger.Info("Starting sync policy watcher",
		"policy_file", w.cfg.SyncPolicyFile,
		"check_interval", w.cfg.PolicyReloadInterval)

	ticker := time.NewTicker(w.cfg.PolicyReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping sync policy watcher")
			return
		case <-ticker.C:
			if _, err := w.CheckOnce(); err != nil {
				w.logger.Error("Error reloading sync policy, keeping previous policy", "error", err)
			}
		}
	}
}

// CheckOnce reloads the policy when the file's size or modification time
// changed. It reports whether a new policy was stored.
func (w *PolicyWatcher) CheckOnce() (bool, error) {
	info, err := os.Stat(w.cfg.SyncPolicyFile)
	if err != nil {
		return false, fmt.Errorf("failed to stat sync policy: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !info.ModTime().After(w.modTime) && info.Size() == w.size {
		return false, nil
	}

	policy, err := LoadSyncPolicy(w.cfg.SyncPolicyFile)
	if err != nil {
		return false, err
	}
	policy = w.cfg.applyOverrides(policy)
	if err := policy.validate(); err != nil {
		return false, fmt.Errorf("invalid sync policy: %w", err)
	}

	w.modTime = info.ModTime()
	w.size = info.Size()
	w.source.Store(policy)

	w.logger.Info("Sync policy reloaded",
		"policy_file", w.cfg.SyncPolicyFile,
		"departments", len(policy.Departments),
		"status_mappings", len(policy.StatusMap))

	return true, nil
}
