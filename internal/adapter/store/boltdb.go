package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketMeta    = []byte("meta")
	bucketIndex   = []byte("index")
	bucketEntries = []byte("entries")

	keyDimension     = []byte("dimension")
	keyCount         = []byte("count")
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
	keyFlat          = []byte("flat_l2")
)

// storedEntry is the JSON form of an entry; its vector lives in the index blob.
type storedEntry struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Tenant   string            `json:"tenant,omitempty"`
}

func openDB(path string) (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketIndex, bucketEntries} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func entryKey(pos int) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(pos))
	return k[:]
}

func putInt(b *bbolt.Bucket, key []byte, v int) error {
	return b.Put(key, []byte(strconv.Itoa(v)))
}

func getInt(b *bbolt.Bucket, key []byte) (int, bool, error) {
	raw := b.Get(key)
	if raw == nil {
		return 0, false, nil
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, true, fmt.Errorf("meta %s: %w", key, err)
	}
	return v, true, nil
}

// putEntries writes entries at consecutive positions starting at from.
func putEntries(b *bbolt.Bucket, from int, entries []storedEntry) error {
	for i, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put(entryKey(from+i), data); err != nil {
			return err
		}
	}
	return nil
}

// resetBucket drops and recreates a bucket inside tx.
func resetBucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
		return nil, err
	}
	return tx.CreateBucket(name)
}
