// Package auth implements AuthStore (spec §3, §4.6): RBAC AuthKey
// records persisted in bbolt and hashed with bcrypt, SessionToken
// issuance/verification, and the admin boot key (present whenever a boot
// secret is configured). The
// in-memory index is a copy-on-write map (spec §5: "the auth store is a
// concurrent map with copy-on-write semantics on updates"), backed by
// bbolt for durability across restarts.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/dbtypes"
)

var authKeysBucket = []byte("auth_keys")

// adminBootID is the sentinel id for the in-memory-only admin boot key;
// it is never persisted and never returned by List.
const adminBootID = "admin-boot"

// record is the persisted shape of an AuthKey: the public fields plus a
// bcrypt hash of the secret, never the secret itself.
type record struct {
	dbtypes.AuthKey
	SecretHash []byte `json:"secret_hash"`
}

// Store owns the RBAC key index, the in-memory session-token table, and
// the admin boot key.
type Store struct {
	db *bolt.DB

	mu      sync.RWMutex // guards keys (copy-on-write: replace, never mutate in place)
	keys    map[string]record
	admin   record
	adminOK bool

	sessMu     sync.RWMutex
	sessions   map[string]dbtypes.SessionToken
	sessionTTL time.Duration
}

// Open loads (or creates) the bbolt-backed AuthKey index at path and
// installs a non-empty adminSecret as the permanent, unlistable admin
// boot key; with an empty adminSecret no admin boot key exists.
// sessionTTL bounds the lifetime of tokens issued by /api/login.
func Open(path string, adminSecret string, sessionTTL time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0o640, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open auth store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(authKeysBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("init auth buckets: %w", err)
	}

	s := &Store{
		db:         db,
		keys:       make(map[string]record),
		sessions:   make(map[string]dbtypes.SessionToken),
		sessionTTL: sessionTTL,
	}

	if adminSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin secret: %w", err)
		}
		s.admin = record{
			AuthKey: dbtypes.AuthKey{
				ID:          adminBootID,
				Name:        "admin-boot",
				Permissions: dbtypes.Permissions{dbtypes.PermRead, dbtypes.PermWrite, dbtypes.PermAdmin},
				CreatedAt:   time.Now().UTC(),
			},
			SecretHash: hash,
		}
		s.adminOK = true
	}

	if err := s.loadFromDisk(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) loadFromDisk() error {
	loaded := make(map[string]record)
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(authKeysBucket)
		return b.ForEach(func(k, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			loaded[string(k)] = r
			return nil
		})
	}); err != nil {
		return fmt.Errorf("load auth keys: %w", err)
	}
	s.mu.Lock()
	s.keys = loaded
	s.mu.Unlock()
	return nil
}

// Create mints a new AuthKey with a fresh dk_-prefixed secret, persists
// it, and returns the record with the one-time plaintext secret attached.
func (s *Store) Create(name string, perms dbtypes.Permissions, expiresIn time.Duration) (dbtypes.AuthKey, string, error) {
	id := uuid.NewString()
	secret, err := generateSecret()
	if err != nil {
		return dbtypes.AuthKey{}, "", dberr.Wrap(dberr.Internal, "generate secret", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return dbtypes.AuthKey{}, "", dberr.Wrap(dberr.Internal, "hash secret", err)
	}

	key := dbtypes.AuthKey{
		ID:          id,
		Name:        name,
		Permissions: perms,
		CreatedAt:   time.Now().UTC(),
	}
	if expiresIn > 0 {
		exp := key.CreatedAt.Add(expiresIn)
		key.ExpiresAt = &exp
	}
	rec := record{AuthKey: key, SecretHash: hash}

	if err := s.persist(id, rec); err != nil {
		return dbtypes.AuthKey{}, "", err
	}

	s.mu.Lock()
	next := copyKeys(s.keys)
	next[id] = rec
	s.keys = next
	s.mu.Unlock()

	return key, secret, nil
}

// List returns all persisted AuthKeys (no secrets, no admin boot key).
func (s *Store) List() []dbtypes.AuthKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dbtypes.AuthKey, 0, len(s.keys))
	for _, r := range s.keys {
		out = append(out, r.AuthKey)
	}
	return out
}

// Delete revokes an AuthKey by id. Returns dberr NotFound if unknown.
func (s *Store) Delete(id string) error {
	s.mu.RLock()
	_, ok := s.keys[id]
	s.mu.RUnlock()
	if !ok {
		return dberr.New(dberr.NotFound, "key not found")
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(authKeysBucket).Delete([]byte(id))
	}); err != nil {
		return dberr.Wrap(dberr.Internal, "delete key", err)
	}

	s.mu.Lock()
	next := copyKeys(s.keys)
	delete(next, id)
	s.keys = next
	s.mu.Unlock()
	return nil
}

// Verify checks a bearer secret against the admin boot key and every
// non-expired AuthKey, returning the matching permission set. It does
// not distinguish unknown-secret from expired-secret in its result, per
// spec §7 (no information leak about which check failed).
func (s *Store) Verify(secret string) (dbtypes.Permissions, bool) {
	now := time.Now()

	if s.adminOK && bcrypt.CompareHashAndPassword(s.admin.SecretHash, []byte(secret)) == nil {
		return s.admin.Permissions, true
	}

	s.mu.RLock()
	keys := s.keys
	s.mu.RUnlock()

	for _, r := range keys {
		if r.Expired(now) {
			continue
		}
		if bcrypt.CompareHashAndPassword(r.SecretHash, []byte(secret)) == nil {
			return r.Permissions, true
		}
	}
	return nil, false
}

// IssueSession exchanges a verified AuthKey secret for a SessionToken
// carrying the same permission set.
func (s *Store) IssueSession(perms dbtypes.Permissions) (dbtypes.SessionToken, error) {
	tok, err := generateSecret()
	if err != nil {
		return dbtypes.SessionToken{}, dberr.Wrap(dberr.Internal, "generate session token", err)
	}
	sess := dbtypes.SessionToken{
		Token:       tok,
		Permissions: perms,
		ExpiresAt:   time.Now().Add(s.sessionTTL),
	}
	s.sessMu.Lock()
	s.sessions[tok] = sess
	s.sessMu.Unlock()
	return sess, nil
}

// VerifySession checks a bearer token against the live session table.
func (s *Store) VerifySession(token string) (dbtypes.Permissions, bool) {
	s.sessMu.RLock()
	sess, ok := s.sessions[token]
	s.sessMu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(sess.ExpiresAt) {
		s.sessMu.Lock()
		delete(s.sessions, token)
		s.sessMu.Unlock()
		return nil, false
	}
	return sess.Permissions, true
}

func (s *Store) persist(id string, rec record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return dberr.Wrap(dberr.Internal, "marshal key", err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(authKeysBucket).Put([]byte(id), body)
	}); err != nil {
		return dberr.Wrap(dberr.Internal, "persist key", err)
	}
	return nil
}

func copyKeys(in map[string]record) map[string]record {
	out := make(map[string]record, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// generateSecret returns a high-entropy dk_-prefixed bearer secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "dk_" + hex.EncodeToString(buf), nil
}
