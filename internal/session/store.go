// Package session persists the dashboard identity (the signed-in email)
// across restarts.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/elpatron68/sheetdash/internal/config"
)

// Store is a single-key identity store. Get returns "" when nothing is stored.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, email string) error
	Clear(ctx context.Context) error
}

// NewFromConfig picks the backend named by session.backend.
func NewFromConfig(cfg *config.Config) (Store, error) {
	switch cfg.Session.Backend {
	case "", config.SessionFile:
		return NewFileStore(cfg.Session.Path, cfg.Session.Key), nil
	case config.SessionRedis:
		if cfg.Session.Redis.Addr == "" {
			return nil, errors.New("session: redis backend requires session.redis.addr")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		return NewRedisStore(client, cfg.Session.Key), nil
	default:
		return nil, fmt.Errorf("session: unknown backend %q", cfg.Session.Backend)
	}
}

// MemoryStore keeps the identity in process memory only.
type MemoryStore struct {
	mu    sync.Mutex
	email string
}

func (m *MemoryStore) Get(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.email, nil
}

func (m *MemoryStore) Set(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.email = email
	return nil
}

func (m *MemoryStore) Clear(context.Context) error { return m.Set(context.Background(), "") }

// FileStore keeps a small YAML document mapping key to email.
type FileStore struct {
	mu   *sync.Mutex
	path string
	key  string
}

func NewFileStore(path, key string) *FileStore {
	if key == "" {
		key = defaultKey
	}
	return &FileStore{mu: &sync.Mutex{}, path: path, key: key}
}

// Scope returns a store for operator's identity in the same file.
func (f *FileStore) Scope(operator string) Store {
	return &FileStore{mu: f.mu, path: f.path, key: f.key + "." + operator}
}

const defaultKey = "taskDashboardUserEmail"

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	m := map[string]string{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", f.path, err)
	}
	return m, nil
}

func (f *FileStore) write(m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Get(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return "", err
	}
	return m[f.key], nil
}

func (f *FileStore) Set(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return err
	}
	m[f.key] = email
	return f.write(m)
}

func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := m[f.key]; !ok {
		return nil
	}
	delete(m, f.key)
	return f.write(m)
}

// RedisStore shares the identity between several dashboard instances.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = defaultKey
	}
	return &RedisStore{client: client, key: key}
}

// Scope returns a store for operator's identity under a derived key.
func (r *RedisStore) Scope(operator string) Store {
	return &RedisStore{client: r.client, key: r.key + ":" + operator}
}

func (r *RedisStore) Get(ctx context.Context) (string, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *RedisStore) Set(ctx context.Context, email string) error {
	return r.client.Set(ctx, r.key, email, 0).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
