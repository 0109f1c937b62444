// Package watcher provides the config/credential hot-reload this proxy
// needs (SPEC_FULL.md §4.4): a single config file and a single Code
// Assist credential file, watched with fsnotify and deduplicated by
// content hash. Grounded on the teacher's internal/watcher.Watcher, cut
// down from its multi-provider client-map reload to the two files this
// proxy actually has.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/valerka1292/gemini-cli-proxy/internal/config"
)

// Watcher watches the config file and the Code Assist credential file for
// changes and invokes the corresponding callback when their content
// actually changes.
type Watcher struct {
	configPath string
	authPath   string

	onConfigReload func(*config.Config)
	onAuthReload   func()

	fsw *fsnotify.Watcher

	mu             sync.Mutex
	lastConfigHash string
	lastAuthHash   string
}

// New constructs a Watcher. onConfigReload is called with the freshly
// loaded config after the config file's content changes; onAuthReload is
// called (with no arguments, since the caller already holds the
// auth.Client whose ReloadToken it should invoke) after the credential
// file's content changes.
func New(configPath, authPath string, onConfigReload func(*config.Config), onAuthReload func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		configPath:     configPath,
		authPath:       authPath,
		onConfigReload: onConfigReload,
		onAuthReload:   onAuthReload,
		fsw:            fsw,
	}, nil
}

// Start begins watching both files and primes the content-hash cache so
// the first real change (not the file simply existing) triggers a reload.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(filepath.Dir(w.configPath)); err != nil {
		return err
	}
	if err := w.fsw.Add(filepath.Dir(w.authPath)); err != nil {
		return err
	}

	if hash, err := hashFile(w.configPath); err == nil {
		w.lastConfigHash = hash
	}
	if hash, err := hashFile(w.authPath); err == nil {
		w.lastAuthHash = hash
	}

	go w.loop(ctx)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Errorf("watcher: fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	switch filepath.Clean(event.Name) {
	case filepath.Clean(w.configPath):
		w.reloadConfig()
	case filepath.Clean(w.authPath):
		w.reloadAuth()
	}
}

func (w *Watcher) reloadConfig() {
	hash, err := hashFile(w.configPath)
	if err != nil {
		log.Errorf("watcher: failed to hash config file: %v", err)
		return
	}

	w.mu.Lock()
	unchanged := hash == w.lastConfigHash
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := config.LoadConfig(w.configPath)
	if err != nil {
		log.Errorf("watcher: failed to reload config: %v", err)
		return
	}

	w.mu.Lock()
	w.lastConfigHash = hash
	w.mu.Unlock()

	log.Infof("watcher: config file changed, reloading")
	if w.onConfigReload != nil {
		w.onConfigReload(cfg)
	}
}

func (w *Watcher) reloadAuth() {
	hash, err := hashFile(w.authPath)
	if err != nil {
		log.Errorf("watcher: failed to hash credential file: %v", err)
		return
	}

	w.mu.Lock()
	unchanged := hash == w.lastAuthHash
	w.lastAuthHash = hash
	w.mu.Unlock()
	if unchanged {
		return
	}

	log.Infof("watcher: credential file changed, reloading token")
	if w.onAuthReload != nil {
		w.onAuthReload()
	}
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", os.ErrInvalid
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
