package types

import (
	"sync"
)

// StateMap wraps sync.Map with type safety
// maps transfer id -> latest BridgeTransfer snapshot
type StateMap struct {
	Mu       sync.Mutex
	internal sync.Map
}

func NewStateMap() *StateMap {
	return &StateMap{
		Mu:       sync.Mutex{},
		internal: sync.Map{},
	}
}

// Load loads the snapshot of a transfer
func (sm *StateMap) Load(id string) (value BridgeTransfer, ok bool) {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	internalResult, ok := sm.internal.Load(id)
	if !ok {
		return BridgeTransfer{}, ok
	}
	return internalResult.(BridgeTransfer), ok
}

// Store stores a copy of the transfer so later mutations by the caller are not visible
func (sm *StateMap) Store(t BridgeTransfer) {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	sm.internal.Store(t.ID, t.Clone())
}

// All returns every stored snapshot.
func (sm *StateMap) All() []BridgeTransfer {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	var out []BridgeTransfer
	sm.internal.Range(func(_, v any) bool {
		out = append(out, v.(BridgeTransfer))
		return true
	})
	return out
}
