package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	appLog "gcalexport/internal/log"
)

// LoadResult contains the outcome of reading a single source file.
type LoadResult struct {
	Path        string
	Body        []byte
	Fingerprint string // hex SHA-256 of Body
	Changed     bool   // false if Body matches the previous read of Path
}

// cacheEntry remembers what a path held the last time it was read.
type cacheEntry struct {
	Fingerprint string
	ModTime     time.Time
	Size        int64
	Body        []byte
	LoadedAt    time.Time
}

// Loader reads source files and tracks their content fingerprints so
// callers can tell whether anything changed between two reads.
// It is safe for concurrent use.
type Loader struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// defaultLoader backs sources constructed without an explicit Loader.
var defaultLoader = NewLoader()

// NewLoader creates a new Loader.
func NewLoader() *Loader {
	return &Loader{cache: make(map[string]cacheEntry)}
}

// Load reads path. When the file's size and modification time match the
// previous read the cached body is returned without reading the file again.
func (l *Loader) Load(ctx context.Context, path string) (LoadResult, error) {
	if path == "" {
		return LoadResult{}, errors.New("source path is empty")
	}
	if err := ctx.Err(); err != nil {
		return LoadResult{}, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return LoadResult{}, err
	}

	l.mu.Lock()
	prev, seen := l.cache[path]
	l.mu.Unlock()

	if seen && prev.Size == fi.Size() && prev.ModTime.Equal(fi.ModTime()) {
		appLog.Debug("source load: unchanged; using cache", "path", path)
		return LoadResult{
			Path:        path,
			Body:        prev.Body,
			Fingerprint: prev.Fingerprint,
			Changed:     false,
		}, nil
	}

	body, err := readFile(path)
	if err != nil {
		return LoadResult{}, err
	}

	sum := sha256.Sum256(body)
	fp := hex.EncodeToString(sum[:])

	l.mu.Lock()
	l.cache[path] = cacheEntry{
		Fingerprint: fp,
		ModTime:     fi.ModTime(),
		Size:        fi.Size(),
		Body:        body,
		LoadedAt:    time.Now().UTC(),
	}
	l.mu.Unlock()

	changed := !seen || prev.Fingerprint != fp
	appLog.Debug("source load", "path", path, "bytes", len(body), "changed", changed)

	return LoadResult{
		Path:        path,
		Body:        body,
		Fingerprint: fp,
		Changed:     changed,
	}, nil
}

// Fingerprint returns the last known fingerprint for path, or "".
func (l *Loader) Fingerprint(path string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache[path].Fingerprint
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
