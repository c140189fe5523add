package links

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/logging"
)

// Store holds the active templates and reloads them when the backing file
// changes. A Store with no path serves the defaults forever.
type Store struct {
	path         string
	log          *logging.Logger
	mutex        sync.RWMutex
	templates    Templates
	lastModified time.Time
	onReload     func(Templates)
}

// NewStore loads templates from path. An empty path, or a path that does not
// exist yet, starts from the defaults.
func NewStore(path string, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Nop()
	}
	s := &Store{
		path:      path,
		log:       log.With("component", "links"),
		templates: DefaultTemplates(),
	}
	if path == "" {
		return s, nil
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		s.log.Warning("Link template file %s not found, using defaults", path)
		return s, nil
	}
	if err != nil {
		return nil, apperror.NewLinksError(apperror.ErrLinksTemplates, "failed to stat link templates", err)
	}

	t, err := LoadTemplates(path)
	if err != nil {
		return nil, apperror.NewLinksError(apperror.ErrLinksTemplates, "failed to load link templates", err)
	}
	s.templates = t
	s.lastModified = info.ModTime()
	return s, nil
}

// Templates returns the active templates.
func (s *Store) Templates() Templates {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.templates
}

// SetReloadHandler registers a callback run after every successful reload.
func (s *Store) SetReloadHandler(handler func(Templates)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onReload = handler
}

// Reload re-reads the file if it changed since the last load. An invalid file
// is logged and the previous templates stay active.
func (s *Store) Reload() (bool, error) {
	if s.path == "" {
		return false, nil
	}

	s.mutex.Lock()
	info, err := os.Stat(s.path)
	if err != nil {
		s.mutex.Unlock()
		return false, fmt.Errorf("failed to check link templates: %w", err)
	}
	if !info.ModTime().After(s.lastModified) {
		s.mutex.Unlock()
		return false, nil
	}

	t, err := LoadTemplates(s.path)
	if err != nil {
		s.mutex.Unlock()
		s.log.Error("Error reloading link templates: %v", err)
		return false, err
	}
	s.templates = t
	s.lastModified = info.ModTime()
	handler := s.onReload
	s.mutex.Unlock()

	s.log.Info("Link templates reloaded from %s", s.path)
	if handler != nil {
		handler(t)
	}
	return true, nil
}

// Watch reloads the templates on file-system events until ctx is done. The
// directory is watched rather than the file so editors that replace the file
// are still seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
				_, _ = s.Reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warning("Error watching link templates: %v", err)
		}
	}
}
