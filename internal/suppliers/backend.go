package suppliers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-redis/redis/v8"
)

// Backend is durable storage for the whole supplier document. Load returns
// a nil document when nothing has been stored yet; Save overwrites it.
type Backend interface {
	Load(ctx context.Context) (map[string]any, error)
	Save(ctx context.Context, profiles map[string]Profile) error
	String() string
}

// FileBackend stores the document as JSON, or as TOML when the path ends
// in .toml.
type FileBackend struct {
	path string

	mu     sync.Mutex
	digest [sha256.Size]byte
}

// NewFileBackend creates a file backend for path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the backing file path.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) String() string { return "file:" + b.path }

func (b *FileBackend) isTOML() bool {
	return strings.EqualFold(filepath.Ext(b.path), ".toml")
}

// Load reads and decodes the file. A missing file is an empty document.
func (b *FileBackend) Load(ctx context.Context) (map[string]any, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read supplier file: %w", err)
	}
	b.remember(data)

	doc := make(map[string]any)
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if b.isTOML() {
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("decode supplier toml: %w", err)
		}
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode supplier json: %w", err)
	}
	return doc, nil
}

// Save encodes profiles and replaces the file atomically through a
// temporary file in the same directory.
func (b *FileBackend) Save(ctx context.Context, profiles map[string]Profile) error {
	data, err := b.encode(profiles)
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create supplier directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace supplier file: %w", err)
	}
	b.remember(data)
	return nil
}

func (b *FileBackend) encode(profiles map[string]Profile) ([]byte, error) {
	var buf bytes.Buffer
	if b.isTOML() {
		if err := toml.NewEncoder(&buf).Encode(profiles); err != nil {
			return nil, fmt.Errorf("encode supplier toml: %w", err)
		}
		return buf.Bytes(), nil
	}
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(profiles); err != nil {
		return nil, fmt.Errorf("encode supplier json: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *FileBackend) remember(data []byte) {
	sum := sha256.Sum256(data)
	b.mu.Lock()
	b.digest = sum
	b.mu.Unlock()
}

// Changed reports whether the file on disk differs from what this backend
// last read or wrote.
func (b *FileBackend) Changed() (bool, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(data)
	b.mu.Lock()
	defer b.mu.Unlock()
	return sum != b.digest, nil
}

// RedisBackend stores the document as one JSON value.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend stores the document under "<prefix>:suppliers".
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, key: prefix + ":suppliers"}
}

func (b *RedisBackend) String() string { return "redis:" + b.key }

// Load fetches the document. A missing key is an empty document.
func (b *RedisBackend) Load(ctx context.Context) (map[string]any, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read suppliers from redis: %w", err)
	}

	doc := make(map[string]any)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode supplier json: %w", err)
	}
	return doc, nil
}

// Save overwrites the document without expiry.
func (b *RedisBackend) Save(ctx context.Context, profiles map[string]Profile) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("encode supplier json: %w", err)
	}
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write suppliers to redis: %w", err)
	}
	return nil
}
