package identity

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BoltStore is the default KVStore implementation, an embedded single-file
// store — used elsewhere in the retrieved corpus for exactly this
// local-persisted-device-state role — with one bucket per namespace.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: open bolt db: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Get implements KVStore.
func (s *BoltStore) Get(namespace, key string) (string, bool) {
	var value string
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		value = string(v)
		found = true
		return nil
	})
	if err != nil {
		return "", false
	}
	return value, found
}

// Put implements KVStore.
func (s *BoltStore) Put(namespace, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return fmt.Errorf("identity: create bucket %q: %w", namespace, err)
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
