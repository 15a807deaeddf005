// Package selectors provides watch-page structural pattern loading and management.
package selectors

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ReloadStats contains statistics about selector reloads.
type ReloadStats struct {
	LastReloadTime time.Time `json:"lastReloadTime,omitempty"`
	ReloadCount    int64     `json:"reloadCount"`
	LastError      error     `json:"-"`
	LastErrorStr   string    `json:"lastError,omitempty"`
}

// Manager provides hot-reload capable selector management.
// It maintains embedded default selectors and optionally watches an external
// file for runtime updates. Reads are lock-free using atomic.Value.
type Manager struct {
	embedded     *Selectors   // Compiled-in defaults (immutable)
	current      atomic.Value // *Selectors - atomic swap for lock-free reads
	externalPath string       // Path to external override file
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex // Protects reload operations and stats
	stats        ReloadStats
	closed       bool
}

// NewManager creates a new selectors Manager.
// If externalPath is empty, only embedded selectors are used.
// If hotReload is true and externalPath is set, file changes trigger reloads.
func NewManager(externalPath string, hotReload bool) (*Manager, error) {
	m := &Manager{
		embedded:     Get(),
		externalPath: externalPath,
		stopCh:       make(chan struct{}),
	}

	m.current.Store(m.embedded)

	if externalPath != "" {
		if err := m.loadExternal(); err != nil {
			log.Warn().
				Err(err).
				Str("path", externalPath).
				Msg("Failed to load external selectors, using embedded defaults")
		} else {
			log.Info().
				Str("path", externalPath).
				Msg("Loaded external selectors file")
		}

		if hotReload {
			if err := m.startWatcher(); err != nil {
				log.Warn().
					Err(err).
					Str("path", externalPath).
					Msg("Failed to start file watcher, hot-reload disabled")
			} else {
				log.Info().
					Str("path", externalPath).
					Msg("Hot-reload enabled for selectors file")
			}
		}
	}

	return m, nil
}

// Get returns the current Selectors instance.
// This is a lock-free O(1) operation safe for concurrent use.
func (m *Manager) Get() *Selectors {
	return m.current.Load().(*Selectors)
}

// Reload manually reloads selectors from the external file.
// On failure, the previous selectors remain in use.
func (m *Manager) Reload() error {
	if m.externalPath == "" {
		return fmt.Errorf("no external selectors path configured")
	}
	return m.loadExternal()
}

// Stats returns the current reload statistics.
func (m *Manager) Stats() ReloadStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	if stats.LastError != nil {
		stats.LastErrorStr = stats.LastError.Error()
	}
	return stats
}

// Close stops the file watcher and cleans up resources.
// Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// loadExternal loads selectors from the external file and atomically swaps
// the current instance.
func (m *Manager) loadExternal() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("failed to read selectors file: %w", err)
	}

	sel, err := parseAndValidate(data)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("failed to parse selectors file: %w", err)
	}

	m.current.Store(m.mergeWithEmbedded(sel))

	m.stats.LastReloadTime = time.Now()
	m.stats.ReloadCount++
	m.stats.LastError = nil

	log.Info().
		Int64("reload_count", m.stats.ReloadCount).
		Msg("Selectors hot-reloaded successfully")

	return nil
}

// parseAndValidate parses YAML data and validates the selectors.
func parseAndValidate(data []byte) (*Selectors, error) {
	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that the Selectors carry enough patterns to be usable.
func (s *Selectors) Validate() error {
	if len(s.LikeButton) == 0 && len(s.AvatarContainerIDs) == 0 && len(s.BylineContainers) == 0 {
		return fmt.Errorf("selectors must have at least one pattern in like_button, avatar_container_ids, or byline_containers")
	}
	return nil
}

// mergeWithEmbedded creates a new Selectors by merging external with embedded.
// External patterns take precedence; embedded fills in missing fields.
func (m *Manager) mergeWithEmbedded(external *Selectors) *Selectors {
	merged := &Selectors{}

	if len(external.LikeButton) > 0 {
		merged.LikeButton = external.LikeButton
	} else {
		merged.LikeButton = m.embedded.LikeButton
	}
	if len(external.AffirmativeTerms) > 0 {
		merged.AffirmativeTerms = external.AffirmativeTerms
	} else {
		merged.AffirmativeTerms = m.embedded.AffirmativeTerms
	}
	if len(external.NegativeTerms) > 0 {
		merged.NegativeTerms = external.NegativeTerms
	} else {
		merged.NegativeTerms = m.embedded.NegativeTerms
	}
	if external.ToggleAttribute != "" {
		merged.ToggleAttribute = external.ToggleAttribute
	} else {
		merged.ToggleAttribute = m.embedded.ToggleAttribute
	}
	if len(external.AvatarContainerIDs) > 0 {
		merged.AvatarContainerIDs = external.AvatarContainerIDs
	} else {
		merged.AvatarContainerIDs = m.embedded.AvatarContainerIDs
	}
	if len(external.BylineContainers) > 0 {
		merged.BylineContainers = external.BylineContainers
	} else {
		merged.BylineContainers = m.embedded.BylineContainers
	}
	if len(external.ChannelHrefPatterns) > 0 {
		merged.ChannelHrefPatterns = external.ChannelHrefPatterns
	} else {
		merged.ChannelHrefPatterns = m.embedded.ChannelHrefPatterns
	}

	return merged
}

// startWatcher sets up the fsnotify watcher on the external file's directory.
// Watching the directory instead of the file survives editors that replace
// the file on save.
func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	dir := filepath.Dir(m.externalPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		m.watcher = nil
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watchLoop()
	}()

	return nil
}

// watchLoop processes file system events until the manager is closed.
// Reload is debounced because editors fire multiple events per save.
func (m *Manager) watchLoop() {
	const debounce = 200 * time.Millisecond
	var timer *time.Timer

	target := filepath.Clean(m.externalPath)

	for {
		select {
		case <-m.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := m.loadExternal(); err != nil {
					log.Warn().Err(err).Msg("Selector reload after file change failed, keeping previous selectors")
				}
			})

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Selector file watcher error")
		}
	}
}
