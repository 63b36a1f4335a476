// Package identity implements the persistent session identifier (C8): a
// stable ID loaded from an external key-value store on first use, with an
// ephemeral crypto/rand fallback if the store is unavailable.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

const (
	// Namespace and Key are the persisted location, per the wire contract:
	// one key, "session_id", under namespace "proxy_client".
	Namespace = "proxy_client"
	Key       = "session_id"

	// maxIDLen bounds the persisted value per the wire contract (ASCII,
	// length <= 31).
	maxIDLen = 31
)

// KVStore is the external key-value store collaborator. A real device
// implementation is backed by bbolt (see boltstore.go); tests substitute
// an in-memory map.
type KVStore interface {
	// Get returns the stored value and true, or ("", false) if absent or
	// on any store-level failure.
	Get(namespace, key string) (string, bool)
	// Put persists value under namespace/key. A non-nil error is treated
	// as a KV failure by Load, which then falls through to an ephemeral ID.
	Put(namespace, key, value string) error
}

// Load returns the persisted session ID, creating and storing one on
// first use. On KV failure (Get or Put), it falls through to an ephemeral
// ID whose lifetime equals the process lifetime.
func Load(store KVStore) string {
	if store != nil {
		if id, ok := store.Get(Namespace, Key); ok && id != "" {
			return id
		}
	}

	id := generate()

	if store != nil {
		if err := store.Put(Namespace, Key, id); err != nil {
			log.Printf("identity: failed to persist session id, using ephemeral: %v", err)
		}
	} else {
		log.Printf("identity: no KV store configured, using ephemeral session id")
	}

	return id
}

// generate produces "esp32-" || hex(random32), the fixed format of the
// wire contract.
func generate() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failures are effectively unrecoverable on any real
		// platform; fall back to a fixed marker rather than panicking so
		// the assistant can still start without a stable ID.
		log.Printf("identity: crypto/rand failed, using fixed fallback id: %v", err)
		return "esp32-00000000"
	}
	id := fmt.Sprintf("esp32-%s", hex.EncodeToString(buf[:]))
	if len(id) > maxIDLen {
		id = id[:maxIDLen]
	}
	return id
}
