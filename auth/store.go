package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// Fixed keys under which the pair is stored.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// RedisStore keeps the pair in Redis under prefix+KeyAccessToken and
// prefix+KeyRefreshToken.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store using the provided client. prefix namespaces
// the keys, e.g. "studyconnect:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Load(ctx context.Context) (*oauth2.Token, error) {
	vals, err := r.client.MGet(ctx, r.prefix+KeyAccessToken, r.prefix+KeyRefreshToken).Result()
	if err != nil {
		return nil, err
	}
	access, _ := vals[0].(string)
	if access == "" {
		return nil, nil
	}
	refresh, _ := vals[1].(string)
	return &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}, nil
}

// Save writes both keys in one MULTI/EXEC so other readers of the store never
// see a mixed pair.
func (r *RedisStore) Save(ctx context.Context, tok *oauth2.Token) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.prefix+KeyAccessToken, tok.AccessToken, 0)
		if tok.RefreshToken == "" {
			pipe.Del(ctx, r.prefix+KeyRefreshToken)
		} else {
			pipe.Set(ctx, r.prefix+KeyRefreshToken, tok.RefreshToken, 0)
		}
		return nil
	})
	return err
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.prefix+KeyAccessToken, r.prefix+KeyRefreshToken).Err()
}

// FileStore keeps the pair in a JSON file readable by the owner only.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The directory is created on
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultCredentialsPath returns ~/.config/studyconnect/credentials.json.
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "studyconnect", "credentials.json"), nil
}

func (f *FileStore) Load(_ context.Context) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var kv map[string]string
	if err := sonic.Unmarshal(data, &kv); err != nil {
		return nil, fmt.Errorf("failed to decode credentials from %s: %w", f.path, err)
	}
	if kv[KeyAccessToken] == "" {
		return nil, nil
	}
	return &oauth2.Token{AccessToken: kv[KeyAccessToken], RefreshToken: kv[KeyRefreshToken], TokenType: "Bearer"}, nil
}

// Save replaces the file through a rename so a crash never leaves half a pair
// on disk.
func (f *FileStore) Save(_ context.Context, tok *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kv := map[string]string{KeyAccessToken: tok.AccessToken}
	if tok.RefreshToken != "" {
		kv[KeyRefreshToken] = tok.RefreshToken
	}
	data, err := sonic.ConfigStd.MarshalIndent(kv, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to open credentials file for writing: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryStore keeps the pair in process memory only.
type MemoryStore struct {
	mu sync.Mutex
	kv map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{kv: map[string]string{}}
}

func (m *MemoryStore) Load(_ context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kv[KeyAccessToken] == "" {
		return nil, nil
	}
	return &oauth2.Token{AccessToken: m.kv[KeyAccessToken], RefreshToken: m.kv[KeyRefreshToken], TokenType: "Bearer"}, nil
}

func (m *MemoryStore) Save(_ context.Context, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[KeyAccessToken] = tok.AccessToken
	m.kv[KeyRefreshToken] = tok.RefreshToken
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv = map[string]string{}
	return nil
}
