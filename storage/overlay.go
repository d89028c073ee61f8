package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// Overlay stages writes on top of a base database so a multi-step operation
// lands in full or not at all. Reads see staged writes first; Commit pushes
// the whole staged set down to the base. An abandoned overlay leaves the
// base untouched.
type Overlay struct {
	mu      sync.RWMutex
	base    Database
	puts    map[string][]byte
	deleted map[string]struct{}
}

// NewOverlay returns an empty staging layer over base.
func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		puts:    make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// Put stages a key-value pair.
func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	o.puts[string(key)] = stored
	delete(o.deleted, string(key))
	return nil
}

// Get returns the staged value for key, or falls through to the base. A
// staged delete hides the base value.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	value, staged := o.puts[string(key)]
	_, gone := o.deleted[string(key)]
	o.mu.RUnlock()
	if staged {
		return value, nil
	}
	if gone {
		return nil, ErrNotFound
	}
	return o.base.Get(key)
}

// Delete stages a removal. The key disappears from reads immediately; the
// base entry is removed on Commit.
func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.puts, string(key))
	o.deleted[string(key)] = struct{}{}
	return nil
}

// IteratePrefix merges staged and base keys in ascending order. Staged
// values shadow base values under the same key; staged deletes hide base
// keys.
func (o *Overlay) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	o.mu.RLock()
	staged := make([]string, 0, len(o.puts))
	values := make(map[string][]byte, len(o.puts))
	for key, value := range o.puts {
		if strings.HasPrefix(key, string(prefix)) {
			staged = append(staged, key)
			values[key] = value
		}
	}
	gone := make(map[string]struct{}, len(o.deleted))
	for key := range o.deleted {
		if strings.HasPrefix(key, string(prefix)) {
			gone[key] = struct{}{}
		}
	}
	o.mu.RUnlock()
	sort.Strings(staged)
	next := 0
	err := o.base.IteratePrefix(prefix, func(key, value []byte) error {
		for next < len(staged) && staged[next] < string(key) {
			if err := fn([]byte(staged[next]), values[staged[next]]); err != nil {
				return err
			}
			next++
		}
		if next < len(staged) && staged[next] == string(key) {
			next++
			return fn(key, values[string(key)])
		}
		if _, hidden := gone[string(key)]; hidden {
			return nil
		}
		return fn(key, value)
	})
	if err != nil {
		return err
	}
	for ; next < len(staged); next++ {
		if err := fn([]byte(staged[next]), values[staged[next]]); err != nil {
			return err
		}
	}
	return nil
}

// Commit applies the staged set to the base database, deletes first, in key
// order. A LevelDB base takes the set as a single write batch.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if batcher, ok := o.base.(batchWriter); ok {
		return batcher.writeBatch(o.puts, o.deleted)
	}
	keys := make([]string, 0, len(o.deleted))
	for key := range o.deleted {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := o.base.Delete([]byte(key)); err != nil {
			return err
		}
	}
	keys = keys[:0]
	for key := range o.puts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := o.base.Put([]byte(key), o.puts[key]); err != nil {
			return err
		}
	}
	return nil
}

// Close discards the staged set. The base stays open.
func (o *Overlay) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.puts = make(map[string][]byte)
	o.deleted = make(map[string]struct{})
}

type batchWriter interface {
	writeBatch(puts map[string][]byte, deleted map[string]struct{}) error
}

func (ldb *LevelDB) writeBatch(puts map[string][]byte, deleted map[string]struct{}) error {
	batch := new(leveldb.Batch)
	for key := range deleted {
		batch.Delete([]byte(key))
	}
	for key, value := range puts {
		batch.Put([]byte(key), value)
	}
	return ldb.db.Write(batch, nil)
}
