package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

var (
	pendingBurnPrefix = []byte("pending-burn/")
	transferPrefix    = []byte("transfer/")
	sessionKeyPrefix  = []byte("session-key/")
)

// DB is a small key-value store for bridge state that must survive restarts.
// Writes are synced before returning.
type DB struct {
	db *pebble.DB
}

// Open opens or creates a store at path.
func Open(path string) (*DB, error) {
	db, err := pebble.Open(path, &pebble.Options{
		Cache: pebble.NewCache(8 << 20),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open store at %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// NewInMemory returns a store that lives only as long as the process.
func NewInMemory() (*DB, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or nil if it does not exist.
func (s *DB) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (s *DB) Set(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

func (s *DB) Delete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

// IteratePrefix calls fn for each pair whose key starts with prefix, in key order.
func (s *DB) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// prefixUpperBound returns the exclusive upper bound of a prefix scan, nil if unbounded.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}

func (s *DB) putJSON(key []byte, v any) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(key, bz)
}

func keyFor(prefix []byte, id string) []byte {
	return append(append([]byte{}, prefix...), id...)
}

// SavePendingBurn records a burn that has not been minted yet, keyed by its source tx hash.
func (s *DB) SavePendingBurn(burn *types.BurnMessage) error {
	if burn.SourceTxHash == "" {
		return fmt.Errorf("pending burn has no source tx hash")
	}
	return s.putJSON(keyFor(pendingBurnPrefix, burn.SourceTxHash), burn)
}

// PendingBurn returns the pending burn for a source tx hash, or nil.
func (s *DB) PendingBurn(sourceTxHash string) (*types.BurnMessage, error) {
	bz, err := s.Get(keyFor(pendingBurnPrefix, sourceTxHash))
	if err != nil || bz == nil {
		return nil, err
	}
	var burn types.BurnMessage
	if err := json.Unmarshal(bz, &burn); err != nil {
		return nil, fmt.Errorf("corrupt pending burn %s: %w", sourceTxHash, err)
	}
	return &burn, nil
}

func (s *DB) DeletePendingBurn(sourceTxHash string) error {
	return s.Delete(keyFor(pendingBurnPrefix, sourceTxHash))
}

// PendingBurns lists every burn that has not been minted yet.
func (s *DB) PendingBurns() ([]*types.BurnMessage, error) {
	var burns []*types.BurnMessage
	err := s.IteratePrefix(pendingBurnPrefix, func(key, value []byte) error {
		var burn types.BurnMessage
		if err := json.Unmarshal(value, &burn); err != nil {
			return fmt.Errorf("corrupt pending burn %s: %w", key, err)
		}
		burns = append(burns, &burn)
		return nil
	})
	return burns, err
}

// SaveTransfer records the latest state of a bridge transfer.
func (s *DB) SaveTransfer(t *types.BridgeTransfer) error {
	return s.putJSON(keyFor(transferPrefix, t.ID), t)
}

// Transfers lists every recorded bridge transfer.
func (s *DB) Transfers() ([]types.BridgeTransfer, error) {
	var transfers []types.BridgeTransfer
	err := s.IteratePrefix(transferPrefix, func(key, value []byte) error {
		var t types.BridgeTransfer
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("corrupt transfer %s: %w", key, err)
		}
		transfers = append(transfers, t)
		return nil
	})
	return transfers, err
}

// SessionKey returns the stored session key for a wallet, or "".
func (s *DB) SessionKey(wallet string) (string, error) {
	bz, err := s.Get(keyFor(sessionKeyPrefix, wallet))
	return string(bz), err
}

func (s *DB) SetSessionKey(wallet, key string) error {
	return s.Set(keyFor(sessionKeyPrefix, wallet), []byte(key))
}

func (s *DB) DeleteSessionKey(wallet string) error {
	return s.Delete(keyFor(sessionKeyPrefix, wallet))
}
