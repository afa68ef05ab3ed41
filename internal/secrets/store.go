// Package secrets resolves named credentials to plaintext. Values are stored
// AES-256-GCM encrypted under a key derived from the process master secret.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/crypto/hkdf"

	"github.com/rafflehub/platform/internal/repository"
)

// ErrSecretNotFound is returned when a required key has no stored value and
// no environment fallback.
var ErrSecretNotFound = errors.New("secret not found")

// ErrMasterKeyMissing is returned by NewStore when no master secret is configured.
var ErrMasterKeyMissing = errors.New("secrets master key is not configured")

const (
	DefaultTTL = 5 * time.Minute
	hkdfInfo   = "rafflehub/secrets/v1"
)

// GetOptions tunes a single lookup.
type GetOptions struct {
	// FallbackEnv names an entry in the env fallback map used when nothing is stored.
	FallbackEnv string
	// Optional returns ("", nil) instead of ErrSecretNotFound.
	Optional bool
	// ForceRefresh bypasses the cache.
	ForceRefresh bool
}

// Getter is the read side of the store; the gateway registry depends on it.
type Getter interface {
	Get(ctx context.Context, key string, opts GetOptions) (string, error)
}

type cacheEntry struct {
	value   string
	expires time.Time
}

// Store is the encrypted secret store with an in-process TTL cache.
type Store struct {
	db     repository.DBTX
	repo   repository.SecretRepository
	aead   cipher.AEAD
	ttl    time.Duration
	env    map[string]string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewStore derives the data key from masterKey and returns a ready store.
// env supplies fallback values keyed by environment variable name.
func NewStore(db repository.DBTX, repo repository.SecretRepository, masterKey string, ttl time.Duration, env map[string]string, logger *slog.Logger) (*Store, error) {
	if masterKey == "" {
		return nil, ErrMasterKeyMissing
	}
	aead, err := deriveAEAD(masterKey)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if env == nil {
		env = map[string]string{}
	}
	return &Store{
		db:     db,
		repo:   repo,
		aead:   aead,
		ttl:    ttl,
		env:    env,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}, nil
}

func deriveAEAD(masterKey string) (cipher.AEAD, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive secrets key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Get resolves key: cache, then stored ciphertext, then env fallback.
// A stored value that fails to decrypt is a hard error.
func (s *Store) Get(ctx context.Context, key string, opts GetOptions) (string, error) {
	if !opts.ForceRefresh {
		if v, ok := s.cached(key); ok {
			metrics.GetOrCreateCounter(`secret_lookups_total{source="cache"}`).Inc()
			return v, nil
		}
	}

	ct, found, err := s.repo.Get(ctx, s.db, key)
	if err != nil {
		return "", fmt.Errorf("load secret %s: %w", key, err)
	}
	if found {
		v, err := s.decrypt(ct)
		if err != nil {
			s.logger.Error("secret decryption failed", "key", key, "error", err)
			return "", fmt.Errorf("decrypt secret %s: %w", key, err)
		}
		s.store(key, v)
		metrics.GetOrCreateCounter(`secret_lookups_total{source="store"}`).Inc()
		return v, nil
	}

	if opts.FallbackEnv != "" {
		if v := s.env[opts.FallbackEnv]; v != "" {
			s.store(key, v)
			metrics.GetOrCreateCounter(`secret_lookups_total{source="env"}`).Inc()
			return v, nil
		}
	}

	if opts.Optional {
		return "", nil
	}
	metrics.GetOrCreateCounter(`secret_lookups_total{source="missing"}`).Inc()
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// Set encrypts and upserts value, then refreshes the cache entry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	ct, err := s.encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypt secret %s: %w", key, err)
	}
	if err := s.repo.Upsert(ctx, s.db, key, ct); err != nil {
		return err
	}
	s.store(key, value)
	s.logger.Info("secret updated", "key", key)
	return nil
}

// Delete removes the stored value and its cache entry.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, s.db, key); err != nil {
		return err
	}
	s.Invalidate(key)
	s.logger.Info("secret deleted", "key", key)
	return nil
}

// Invalidate drops key from the cache.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

func (s *Store) cached(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[key]
	if !ok || !s.now().Before(e.expires) {
		return "", false
	}
	return e.value, true
}

func (s *Store) store(key, value string) {
	s.mu.Lock()
	s.cache[key] = cacheEntry{value: value, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

// encrypt returns base64(nonce || ciphertext).
func (s *Store) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Store) decrypt(payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("malformed payload: %w", err)
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return "", errors.New("malformed payload: too short")
	}
	pt, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
