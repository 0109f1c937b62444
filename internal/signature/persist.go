// Persistence add-on for the signature cache, grounded on the teacher's
// use of go.etcd.io/bbolt for its on-disk usage-accounting store
// (sdk/cliproxy/usage). Repurposed here as a best-effort, write-behind
// restart-survival snapshot — see SPEC_FULL.md §3. The in-memory Cache
// remains authoritative; nothing on the request path blocks on bbolt.
package signature

import (
	bolt "go.etcd.io/bbolt"
)

var (
	bucketFamily = []byte("signature_family")
	bucketToolID = []byte("signature_tool_call")
)

// Store wraps a bbolt database file dedicated to signature-cache snapshots.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if absent) a bbolt database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFamily); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketToolID)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SnapshotTo writes the cache's current contents to the store, overwriting
// whatever was there. Intended to be called periodically from a background
// ticker, never from the request path.
func (s *Store) SnapshotTo(c *Cache) error {
	byFamily, byToolID := c.Snapshot()
	return s.db.Update(func(tx *bolt.Tx) error {
		familyEntries := make(map[string]string, len(byFamily))
		for k, v := range byFamily {
			familyEntries[string(k)] = v
		}
		if err := replaceStringBucket(tx, bucketFamily, familyEntries); err != nil {
			return err
		}
		return replaceStringBucket(tx, bucketToolID, byToolID)
	})
}

// replaceStringBucket overwrites name's bucket contents with entries.
func replaceStringBucket(tx *bolt.Tx, name []byte, entries map[string]string) error {
	if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
		return err
	}
	b, err := tx.CreateBucket(name)
	if err != nil {
		return err
	}
	for k, v := range entries {
		if err := b.Put([]byte(k), []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

// LoadInto restores a previously persisted snapshot into c.
func (s *Store) LoadInto(c *Cache) error {
	byFamily := make(map[Family]string)
	byToolID := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketFamily); b != nil {
			if err := b.ForEach(func(k, v []byte) error {
				byFamily[Family(k)] = string(v)
				return nil
			}); err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketToolID); b != nil {
			if err := b.ForEach(func(k, v []byte) error {
				byToolID[string(k)] = string(v)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.Restore(byFamily, byToolID)
	return nil
}
