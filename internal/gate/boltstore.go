package gate

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAllowList = []byte("allow_list")
	bucketDenyList  = []byte("deny_list")
)

// BoltStore keeps the lists in a BoltDB file, one bucket per list keyed by sequence
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the BoltDB file at path
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open gate database: %w", err)
	}
	s, err := NewBoltStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewBoltStore creates a store using an already opened BoltDB
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAllowList); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketDenyList); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gate buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) AllowEntries(ctx context.Context) ([]AllowEntry, error) {
	var out []AllowEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAllowList).ForEach(func(k, v []byte) error {
			var e AllowEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DenyEntries(ctx context.Context) ([]DenyEntry, error) {
	var out []DenyEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDenyList).ForEach(func(k, v []byte) error {
			var e DenyEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) AppendAllow(ctx context.Context, e AllowEntry) error {
	return s.put(bucketAllowList, e)
}

func (s *BoltStore) AppendDeny(ctx context.Context, e DenyEntry) error {
	return s.put(bucketDenyList, e)
}

func (s *BoltStore) put(bucket []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// Close closes the underlying database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
