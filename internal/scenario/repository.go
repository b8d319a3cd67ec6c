package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrScenarioNotFound indicates no scenario is loaded under the key and no
// matching file exists in the scenario directory.
var ErrScenarioNotFound = errors.New("scenario not found")

// Repository caches parsed scenarios by session and by bot reference. It is
// read-mostly and safe for concurrent readers. When a scenario directory is
// configured, bot-keyed entries load lazily from `<botId>-<botVersion>.json`
// and a filesystem watcher invalidates cached entries on change.
type Repository struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	bySession map[string]*Scenario
	byBot     map[string]*Scenario
	globalMap []IntentMappingRule
	hasGlobal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRepository creates a repository rooted at dir. Empty dir disables file
// loading; scenarios must then be uploaded explicitly.
func NewRepository(dir string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{
		dir:       dir,
		logger:    logger,
		bySession: map[string]*Scenario{},
		byBot:     map[string]*Scenario{},
	}
	if dir != "" {
		if err := r.startWatcher(); err != nil {
			// Hot-reload is best effort; lazily loaded files still work.
			logger.Warn("scenario watcher unavailable", "dir", dir, "error", err)
		}
	}
	return r, nil
}

func (r *Repository) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	r.watcher = watcher
	r.done = make(chan struct{})
	go r.watchLoop()
	return nil
}

func (r *Repository) watchLoop() {
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			key := strings.TrimSuffix(filepath.Base(event.Name), ".json")
			r.mu.Lock()
			if _, ok := r.byBot[key]; ok {
				delete(r.byBot, key)
				r.logger.Info("scenario cache invalidated", "bot", key, "op", event.Op.String())
			}
			r.mu.Unlock()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("scenario watcher error", "error", err)
		}
	}
}

// Close stops the filesystem watcher.
func (r *Repository) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	return r.watcher.Close()
}

// BotKey builds the cache/file key for a bot reference.
func BotKey(botID, botVersion string) string {
	if botVersion == "" {
		return botID
	}
	return botID + "-" + botVersion
}

// PutSession associates a parsed scenario with a session id.
func (r *Repository) PutSession(sessionID string, sc *Scenario) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySession[sessionID] = sc
}

// GetSession returns the scenario uploaded for a session, if any.
func (r *Repository) GetSession(sessionID string) (*Scenario, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.bySession[sessionID]
	return sc, ok
}

// DropSession removes an uploaded scenario.
func (r *Repository) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySession, sessionID)
}

// Resolve returns the scenario for a turn: the session's uploaded scenario
// when present, else the bot-keyed scenario loaded from the scenario
// directory.
func (r *Repository) Resolve(sessionID, botID, botVersion string) (*Scenario, error) {
	r.mu.RLock()
	if sc, ok := r.bySession[sessionID]; ok {
		r.mu.RUnlock()
		return sc, nil
	}
	key := BotKey(botID, botVersion)
	if sc, ok := r.byBot[key]; ok {
		r.mu.RUnlock()
		return sc, nil
	}
	r.mu.RUnlock()

	if botID == "" {
		return nil, fmt.Errorf("%w: session %q has no scenario and no bot reference", ErrScenarioNotFound, sessionID)
	}
	return r.loadBot(key)
}

func (r *Repository) loadBot(key string) (*Scenario, error) {
	if r.dir == "" {
		return nil, fmt.Errorf("%w: no scenario directory configured", ErrScenarioNotFound)
	}
	path := filepath.Join(r.dir, key+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, path)
		}
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = key
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another turn may have loaded it while we parsed; last write wins,
	// both parses came from the same file.
	r.byBot[key] = sc
	r.logger.Info("scenario loaded", "bot", key, "plans", len(sc.Plans), "webhooks", len(sc.Webhooks))
	return sc, nil
}

// SetIntentMapping replaces the global intent mapping table. It applies to
// subsequent turns of all sessions.
func (r *Repository) SetIntentMapping(rules []IntentMappingRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globalMap = rules
	r.hasGlobal = true
}

// IntentMapping returns the mapping rules for a scenario: the global table
// when one has been installed, else the scenario's own rules.
func (r *Repository) IntentMapping(sc *Scenario) []IntentMappingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.hasGlobal {
		return r.globalMap
	}
	if sc != nil {
		return sc.IntentMapping
	}
	return nil
}
