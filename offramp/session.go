package offramp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cosmossdk.io/log"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// SessionKeyIssuer obtains a fresh session key for a wallet.
type SessionKeyIssuer interface {
	SessionKey(ctx context.Context, wallet string) (string, error)
}

// SessionKeyStorage persists session keys per wallet. A missing key is returned as "".
type SessionKeyStorage interface {
	SessionKey(wallet string) (string, error)
	SetSessionKey(wallet, key string) error
	DeleteSessionKey(wallet string) error
}

// ValidSessionKey reports whether key is usable. Serialized empty values from
// older clients are treated as absent.
func ValidSessionKey(key string) bool {
	switch strings.TrimSpace(key) {
	case "", "undefined", "null":
		return false
	}
	return true
}

// SessionKeyStore caches one session key per wallet in memory and in durable storage.
// Keys are only ever replaced, never modified.
type SessionKeyStore struct {
	issuer  SessionKeyIssuer
	storage SessionKeyStorage
	logger  log.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewSessionKeyStore returns a store backed by storage; nil storage keeps keys in memory only.
func NewSessionKeyStore(issuer SessionKeyIssuer, storage SessionKeyStorage, logger log.Logger) *SessionKeyStore {
	return &SessionKeyStore{
		issuer:  issuer,
		storage: storage,
		logger:  logger.With("component", "session-keys"),
		cache:   make(map[string]string),
	}
}

// GetOrCreate returns the wallet's session key, issuing and persisting a new one if
// no valid key is cached or stored.
func (s *SessionKeyStore) GetOrCreate(ctx context.Context, wallet string) (string, error) {
	if wallet == "" {
		return "", types.Validationf("wallet address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.cache[wallet]; ok && ValidSessionKey(key) {
		return key, nil
	}

	if s.storage != nil {
		stored, err := s.storage.SessionKey(wallet)
		if err != nil {
			return "", fmt.Errorf("unable to read session key: %w", err)
		}
		if ValidSessionKey(stored) {
			s.cache[wallet] = stored
			return stored, nil
		}
		if stored != "" {
			s.logger.Info("Discarding invalid stored session key", "wallet", wallet)
		}
		if err := s.storage.DeleteSessionKey(wallet); err != nil {
			return "", fmt.Errorf("unable to clear session key: %w", err)
		}
	}
	delete(s.cache, wallet)

	key, err := s.issuer.SessionKey(ctx, wallet)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrSessionKeyUnavailable, err)
	}
	if !ValidSessionKey(key) {
		return "", fmt.Errorf("%w: response carried no usable session key", types.ErrSessionKeyUnavailable)
	}

	if s.storage != nil {
		if err := s.storage.SetSessionKey(wallet, key); err != nil {
			return "", fmt.Errorf("unable to persist session key: %w", err)
		}
	}
	s.cache[wallet] = key
	s.logger.Info("Issued new session key", "wallet", wallet)
	return key, nil
}

// Invalidate forgets the wallet's session key. A wallet without a key is not an error.
func (s *SessionKeyStore) Invalidate(wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, wallet)
	if s.storage == nil {
		return nil
	}
	return s.storage.DeleteSessionKey(wallet)
}
