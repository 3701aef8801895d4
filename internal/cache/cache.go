package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/klauspost/compress/gzip"
)

const entryExt = ".json.gz"

// Cache keeps the run records of jobs whose inputs have not changed, so that
// rerunning a project only recomputes what was edited.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New creates a new cache instance with the specified directory
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// CacheKey generates the cache key for a job run
// The key is based on:
// - the job definition
// - the run settings
// - the calibration file and input workbook contents
func CacheKey(job *models.Job, settings any) (string, error) {
	h := sha256.New()

	if err := writeString(h, job.Name); err != nil {
		return "", err
	}

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshaling job: %w", err)
	}
	if _, err := h.Write(jobJSON); err != nil {
		return "", err
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshaling settings: %w", err)
	}
	if _, err := h.Write(settingsJSON); err != nil {
		return "", err
	}

	for _, p := range []string{job.Calibration, job.Input.Workbook} {
		if err := hashInput(h, job.Path(p), p); err != nil {
			return "", fmt.Errorf("hashing %s: %w", p, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves a cached run record if it exists
func (c *Cache) Get(key string) (*models.RunOutcome, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.cachePath(key))
	if err != nil {
		return nil, false
	}
	defer f.Close() //nolint:errcheck

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, false
	}
	defer zr.Close() //nolint:errcheck

	var outcome models.RunOutcome
	if err := json.NewDecoder(zr).Decode(&outcome); err != nil {
		// Invalid cache entry, treat as miss
		return nil, false
	}

	return &outcome, true
}

// Put stores a run record in the cache
func (c *Cache) Put(key string, outcome *models.RunOutcome) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	f, err := os.Create(c.cachePath(key))
	if err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(outcome); err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return f.Close()
}

// Clear removes all cached results
func (c *Cache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil
	}

	// Only remove a directory that holds nothing but cache entries
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			return fmt.Errorf("cache directory contains subdirectories - refusing to delete for safety")
		}
		if !strings.HasSuffix(entry.Name(), entryExt) {
			return fmt.Errorf("cache directory contains non-cache files - refusing to delete for safety")
		}
	}

	return os.RemoveAll(c.dir)
}

func (c *Cache) cachePath(key string) string {
	return filepath.Join(c.dir, key+entryExt)
}

func writeString(w io.Writer, s string) error {
	// null byte delimiter against collisions between adjacent fields
	_, err := w.Write([]byte(s + "\x00"))
	return err
}

// hashInput hashes the file at path. A missing file contributes its name, so
// that creating it later invalidates the key.
func hashInput(h io.Writer, path, name string) error {
	if path == "" {
		return writeString(h, "")
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return writeString(h, name)
	}
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	_, err = io.Copy(h, f)
	return err
}
