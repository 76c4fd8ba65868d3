package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"agent-relay/internal/models"
)

const (
	bucketCredentials = "credentials"
	openTimeout       = 5 * time.Second
)

// BoltStore keeps provider keys in a local bbolt file. Each user owns a nested
// bucket under "credentials" whose keys are provider ids.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if needed) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open credential db %q: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketCredentials))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucketCredentials, err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func userBucket(tx *bbolt.Tx, userID string) *bbolt.Bucket {
	root := tx.Bucket([]byte(bucketCredentials))
	if root == nil || userID == "" {
		return nil
	}
	return root.Bucket([]byte(userID))
}

func (s *BoltStore) Lookup(_ context.Context, userID string, provider models.ProviderID) (string, error) {
	var key string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := userBucket(tx, userID)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(provider))
		if v == nil {
			return ErrNotFound
		}
		key = string(v)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return key, nil
}

// Put adds or replaces the key for the pair.
func (s *BoltStore) Put(userID string, provider models.ProviderID, apiKey string) error {
	if userID == "" {
		return errors.New("user id must not be empty")
	}
	if !provider.Known() {
		return fmt.Errorf("unknown provider %q", provider)
	}
	if apiKey == "" {
		return errors.New("api key must not be empty")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(bucketCredentials))
		if err != nil {
			return err
		}
		b, err := root.CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return fmt.Errorf("create bucket for user %q: %w", userID, err)
		}
		return b.Put([]byte(provider), []byte(apiKey))
	})
}

// Delete removes the key for the pair, returning ErrNotFound when absent.
// A user bucket left empty is dropped.
func (s *BoltStore) Delete(userID string, provider models.ProviderID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := userBucket(tx, userID)
		if b == nil || b.Get([]byte(provider)) == nil {
			return ErrNotFound
		}
		if err := b.Delete([]byte(provider)); err != nil {
			return err
		}
		if k, _ := b.Cursor().First(); k == nil {
			return tx.Bucket([]byte(bucketCredentials)).DeleteBucket([]byte(userID))
		}
		return nil
	})
}

// Providers lists the providers the user has keys for, in key order.
func (s *BoltStore) Providers(userID string) ([]models.ProviderID, error) {
	var out []models.ProviderID
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := userBucket(tx, userID)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			out = append(out, models.ProviderID(k))
			return nil
		})
	})
	return out, err
}
