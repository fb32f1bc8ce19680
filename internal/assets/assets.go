// Package assets handles scene loading and caching.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Faultbox/gsplat/internal/logger"
	"github.com/Faultbox/gsplat/pkg/formats"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no search directory holds the requested file.
var ErrNotFound = errors.New("scene not found")

// Manager loads PLY scenes from a list of search directories.
type Manager struct {
	dirs  []string
	cache *Cache
	mu    sync.RWMutex
}

// NewManager creates a new scene manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
	}
}

// AddDir adds a search directory to the manager.
// Directories are searched in reverse order (last added = highest priority).
func (m *Manager) AddDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("opening scene dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("opening scene dir %s: not a directory", dir)
	}

	m.mu.Lock()
	m.dirs = append(m.dirs, dir)
	m.mu.Unlock()

	return nil
}

// Resolve returns the file a scene name refers to. Absolute paths and paths
// that exist relative to the working directory are used as given.
func (m *Manager) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.dirs) - 1; i >= 0; i-- {
		path := filepath.Join(m.dirs[i], name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Load parses a PLY scene, serving repeated requests from the cache.
// Callers must not modify the returned scene.
func (m *Manager) Load(name string) (*formats.PLY, error) {
	path, err := m.Resolve(name)
	if err != nil {
		return nil, err
	}
	if ply, ok := m.cache.Get(path); ok {
		return ply, nil
	}

	ply, err := formats.ParsePLYFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	m.cache.Set(path, ply)
	logger.Debug("scene loaded",
		zap.String("path", path),
		zap.Int("primitives", ply.Gaussians.Len()),
		zap.Int("sh_degree", ply.Gaussians.SHDegree))
	return ply, nil
}

// Close drops the search directories and the cache.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirs = nil
	m.cache.Clear()
}

// Cache is a simple in-memory cache for parsed scenes.
type Cache struct {
	data map[string]*formats.PLY
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]*formats.PLY),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) (*formats.PLY, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ply, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return ply, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, ply *formats.PLY) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = ply
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*formats.PLY)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
