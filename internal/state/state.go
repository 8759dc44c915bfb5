// Package state persists browser sessions and TTL cache records in a
// bbolt database.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/diskview/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.diskview/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	sessionsBucket = []byte("sessions")
	cacheBucket    = []byte("cache")
)

// CacheRecord is a generic TTL-keyed value. A record is readable only
// while now is strictly before ExpiresAt; expired records are inert
// until a sweep removes them.
type CacheRecord struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Store wraps a bbolt database for all persistent application state.
type Store struct {
	db *bolt.DB
}

// Open opens the state database at path, creating it if it does not
// exist. An empty path means ~/.diskview/state.db. Buckets are created
// on open.
func Open(path string) (*Store, error) {
	if path == "" {
		path = defaultDBPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionsBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(cacheBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetSession returns the session record for an ID, or nil if not found.
func (s *Store) GetSession(id string) (*models.Session, error) {
	var sess *models.Session

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}

		sess = &models.Session{}

		return json.Unmarshal(v, sess)
	})

	return sess, err
}

// SaveSession persists a session record. Records holding a token
// without a profile (or the reverse) are rejected: login identity is
// written with SetIdentity so the two always land together.
func (s *Store) SaveSession(sess models.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	if (sess.Token == "") != (sess.Profile == nil) {
		return fmt.Errorf("session token and profile must be set together")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		return tx.Bucket(sessionsBucket).Put([]byte(sess.ID), data)
	})
}

// SetIdentity atomically attaches a token and profile to an existing
// session, clearing the pending OAuth state. The session is never left
// with one half of the identity.
func (s *Store) SetIdentity(id, token string, profile models.UserProfile) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)

		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("session %s not found", id)
		}

		var sess models.Session
		if err := json.Unmarshal(v, &sess); err != nil {
			return err
		}

		sess.Token = token
		sess.Profile = &profile
		sess.OAuthState = ""

		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		return b.Put([]byte(id), data)
	})
}

// DeleteSession removes a session record. Deleting an absent record is
// a no-op, so logout stays idempotent.
func (s *Store) DeleteSession(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
}

// SetCache upserts a cache record with the given TTL. Last write wins.
func (s *Store) SetCache(key string, value json.RawMessage, ttl time.Duration) error {
	now := time.Now()
	rec := CacheRecord{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return tx.Bucket(cacheBucket).Put([]byte(key), data)
	})
}

// GetCache returns the cached value for a key while now < expires_at,
// or nil for absent and expired records alike. Expired records are left
// in place for the sweep.
func (s *Store) GetCache(key string) (json.RawMessage, error) {
	var value json.RawMessage

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cacheBucket).Get([]byte(key))
		if v == nil {
			return nil
		}

		var rec CacheRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}

		if !time.Now().Before(rec.ExpiresAt) {
			return nil
		}

		value = rec.Value

		return nil
	})

	return value, err
}

// SweepExpiredCache deletes all cache records with expires_at <= now
// and returns the number removed.
func (s *Store) SweepExpiredCache() (int, error) {
	removed := 0
	now := time.Now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)

		var expired [][]byte

		err := b.ForEach(func(k, v []byte) error {
			var rec CacheRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			if !now.Before(rec.ExpiresAt) {
				key := make([]byte, len(k))
				copy(key, k)
				expired = append(expired, key)
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(expired)

		return nil
	})

	return removed, err
}

// SweepExpiredSessions deletes session records created more than maxAge
// ago and returns the number removed. The session cookie carries the
// same lifetime, so by the time a record is swept its cookie is dead
// or nearly so; the bearer token inside must not outlive it.
func (s *Store) SweepExpiredSessions(maxAge time.Duration) (int, error) {
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)

		var expired [][]byte

		err := b.ForEach(func(k, v []byte) error {
			var sess models.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}

			if sess.CreatedAt.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				expired = append(expired, key)
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(expired)

		return nil
	})

	return removed, err
}

func defaultDBPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Fail loudly rather than silently writing to the current directory
		// where the database (containing session tokens) might end up with
		// wrong permissions or inside a source-controlled tree.
		fmt.Fprintf(os.Stderr, "fatal: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	return filepath.Join(dir, ".diskview", "state.db")
}
