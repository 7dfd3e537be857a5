package state

import (
	"sort"
	"sync"

	"craftledger/storage"
)

// Overlay buffers writes on top of a base database so that a whole unit of
// work either commits completely or leaves the base untouched. Reads fall
// through to the base for keys the overlay has not written.
type Overlay struct {
	mu     sync.Mutex
	base   storage.Database
	writes map[string][]byte
}

// NewOverlay creates an empty overlay on top of the base database.
func NewOverlay(base storage.Database) *Overlay {
	return &Overlay{base: base, writes: make(map[string][]byte)}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	if value, ok := o.writes[string(key)]; ok {
		o.mu.Unlock()
		return append([]byte(nil), value...), nil
	}
	o.mu.Unlock()
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.Lock()
	if _, ok := o.writes[string(key)]; ok {
		o.mu.Unlock()
		return true, nil
	}
	o.mu.Unlock()
	return o.base.Has(key)
}

// Close satisfies the storage.Database interface. The base stays open.
func (o *Overlay) Close() {}

// Commit flushes the buffered writes to the base database in deterministic
// key order. The overlay must be discarded afterwards.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.writes))
	for key := range o.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := o.base.Put([]byte(key), o.writes[key]); err != nil {
			return err
		}
	}
	o.writes = make(map[string][]byte)
	return nil
}
