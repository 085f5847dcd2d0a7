package credstore

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var credentialsBucket = []byte("credentials")

// BoltBackend stores values in a single bbolt bucket.
type BoltBackend struct {
	db *bbolt.DB
}

// OpenBoltBackend opens (or creates) the database at path.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials bucket: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

// Name implements Backend.
func (b *BoltBackend) Name() string { return "bolt" }

// Load implements Backend.
func (b *BoltBackend) Load(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(credentialsBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

// Save implements Backend.
func (b *BoltBackend) Save(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put([]byte(key), value)
	})
}

// Delete implements Backend.
func (b *BoltBackend) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete([]byte(key))
	})
}

// Close implements Backend.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
