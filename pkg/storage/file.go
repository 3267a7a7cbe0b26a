package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mounirtms/gridcore/pkg/compression"
)

const fileExt = ".dat"

// FileStore persists values as files in a directory. Writes go through
// a temp file in the same directory followed by a rename, so a crash
// mid-write never leaves a torn value behind.
//
// A directory must always be reopened with the same compression
// configuration it was created with; the codec is not recorded in the
// files themselves.
type FileStore struct {
	dir   string
	codec compression.Compressor

	// Serializes writers per store. Readers go straight to disk since
	// rename makes every visible file complete.
	mu sync.Mutex
}

// FileOption configures a FileStore.
type FileOption func(*fileOptions)

type fileOptions struct {
	codec *compression.Config
}

// WithCompression enables at-rest compression for stored values.
func WithCompression(algorithm compression.Algorithm, level compression.Level) FileOption {
	return func(o *fileOptions) {
		o.codec = &compression.Config{Algorithm: algorithm, Level: level}
	}
}

// NewFileStore creates a store rooted at dir, creating the directory
// if needed.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	options := &fileOptions{
		codec: &compression.Config{Algorithm: compression.None},
	}
	for _, opt := range opts {
		opt(options)
	}

	codec, err := compression.NewCompressor(options.codec)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	return &FileStore{dir: dir, codec: codec}, nil
}

// Get reads and decodes the value stored under key.
func (f *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f.codec.Decompress(data)
}

// Set encodes value and atomically replaces the file for key.
func (f *FileStore) Set(key string, value []byte) error {
	data, err := f.codec.Compress(value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // clean up if rename failed
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return fmt.Errorf("replace value file: %w", err)
	}
	return nil
}

// Delete removes the file for key. Missing files are ignored.
func (f *FileStore) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Keys lists stored keys with the given prefix, sorted.
func (f *FileStore) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key, err := decodeKey(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue // foreign file in the directory
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Dir returns the directory backing the store.
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, encodeKey(key)+fileExt)
}

// encodeKey maps an arbitrary key to a safe file name. Bytes outside
// [A-Za-z0-9._-] are written as %XX so keys like "grid:orders:state"
// round-trip on every filesystem.
func encodeKey(key string) string {
	var sb strings.Builder
	sb.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '.' || c == '_' || c == '-' {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", c)
	}
	return sb.String()
}

func decodeKey(name string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+2 >= len(name) {
			return "", fmt.Errorf("truncated escape in %q", name)
		}
		var b byte
		if _, err := fmt.Sscanf(name[i+1:i+3], "%02X", &b); err != nil {
			return "", fmt.Errorf("bad escape in %q: %w", name, err)
		}
		sb.WriteByte(b)
		i += 2
	}
	return sb.String(), nil
}
