package types

import (
	"sync"
)

// SequenceMap holds a signer account's txn count to avoid account sequence mismatch errors
type SequenceMap struct {
	mu sync.Mutex
	// map chain id -> signer account sequence
	sequenceMap map[string]uint64
}

func NewSequenceMap() *SequenceMap {
	return &SequenceMap{
		sequenceMap: map[string]uint64{},
	}
}

func (m *SequenceMap) Put(chainID string, val uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequenceMap[chainID] = val
}

func (m *SequenceMap) Next(chainID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := m.sequenceMap[chainID]
	m.sequenceMap[chainID]++
	return result
}
