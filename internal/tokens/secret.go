package tokens

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SecretSource supplies the issuance salt. The salt only diversifies token
// derivation against weak RNG seeding; rotating it never invalidates
// outstanding tokens, so hot reload is safe.
type SecretSource interface {
	Secret() string
}

// StaticSecret is the env-var backed source.
type StaticSecret string

func (s StaticSecret) Secret() string { return string(s) }

// FileSecret reads the salt from a file and hot-reloads it on change,
// falling back to slow polling when fsnotify is unavailable.
type FileSecret struct {
	path string

	mu      sync.RWMutex
	current string
}

func NewFileSecret(path, fallback string) *FileSecret {
	fs := &FileSecret{path: path, current: fallback}
	fs.reload()
	return fs
}

func (f *FileSecret) Secret() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *FileSecret) reload() {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		log.Printf("Secret Watcher: read %s failed: %v (keeping previous value)", f.path, err)
		return
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		log.Printf("Secret Watcher: %s is empty, keeping previous value", f.path)
		return
	}
	f.mu.Lock()
	f.current = value
	f.mu.Unlock()
}

// StartWatcher monitors the secret file. fsnotify when possible, 60s
// polling as a safety net either way.
func (f *FileSecret) StartWatcher(quit <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("Secret Watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(f.path); err != nil {
		log.Printf("Secret Watcher: failed to watch %s (%v), falling back to polling", f.path, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-quit:
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						// Writers may still be mid-flush on the event.
						time.Sleep(100 * time.Millisecond)
						f.reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("Secret Watcher error: %v", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				f.reload()
			}
		}
	}()
}
