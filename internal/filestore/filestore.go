// Package filestore implements durable, atomic storage of one entity's
// ciphertext blob and plaintext metadata (spec §4.1), guarded by a
// cross-process advisory lock on a per-entity lock file so that multiple
// Processing Worker processes sharing a filesystem never interleave a
// read with an in-flight write.
package filestore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/dbtypes"
)

// ErrCorrupt is returned by Read when exactly one of the blob/metadata
// files is present, or when the metadata file does not parse.
var ErrCorrupt = errors.New("entity corrupt: blob/metadata mismatch")

// ErrNotFound is returned by Read when neither file is present.
var ErrNotFound = errors.New("entity not found")

// Store owns the on-disk files/ directory for one Processing Worker.
type Store struct {
	root string // <shared-fs-root>/db/files
}

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create files dir: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) blobPath(database, key string) string {
	return filepath.Join(s.root, fmt.Sprintf("%s_%s.json.enc", database, key))
}

func (s *Store) metaPath(database, key string) string {
	return filepath.Join(s.root, fmt.Sprintf("%s_%s.meta.json", database, key))
}

func (s *Store) lockPath(database, key string) string {
	return filepath.Join(s.root, fmt.Sprintf("%s_%s.lock", database, key))
}

// lockFor returns a flock.Flock for an entity's lock file, creating the
// file on first use. The lock file is never deleted (spec §4.1).
func (s *Store) lockFor(database, key string) (*flock.Flock, error) {
	if err := ValidateName("database", database); err != nil {
		return nil, err
	}
	if err := ValidateName("key", key); err != nil {
		return nil, err
	}
	path := s.lockPath(database, key)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	f.Close()
	return flock.New(path), nil
}

// Read acquires a shared lock, reads the blob and metadata, and releases
// the lock on every exit path.
func (s *Store) Read(database, key string) ([]byte, *dbtypes.EntityMetadata, error) {
	lock, err := s.lockFor(database, key)
	if err != nil {
		return nil, nil, err
	}
	if err := lock.RLock(); err != nil {
		return nil, nil, fmt.Errorf("acquire shared lock: %w", err)
	}
	defer lock.Unlock()

	return s.readLocked(database, key)
}

func (s *Store) readLocked(database, key string) ([]byte, *dbtypes.EntityMetadata, error) {
	blobBytes, blobErr := os.ReadFile(s.blobPath(database, key))
	metaBytes, metaErr := os.ReadFile(s.metaPath(database, key))

	blobMissing := errors.Is(blobErr, os.ErrNotExist)
	metaMissing := errors.Is(metaErr, os.ErrNotExist)

	switch {
	case blobMissing && metaMissing:
		return nil, nil, ErrNotFound
	case blobMissing != metaMissing:
		return nil, nil, ErrCorrupt
	case blobErr != nil:
		return nil, nil, fmt.Errorf("read blob: %w", blobErr)
	case metaErr != nil:
		return nil, nil, fmt.Errorf("read metadata: %w", metaErr)
	}

	var meta dbtypes.EntityMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return blobBytes, &meta, nil
}

// Write acquires an exclusive lock, reads any previous metadata to let
// buildMeta compute the next version (spec §4.5 PUT pipeline step 4:
// version = prev.version + 1, or 1 if none), then writes blob and
// metadata atomically (temp file + fsync + rename) before releasing the
// lock. buildMeta receives the previous version (0 if this is the first
// write) and returns the metadata to persist.
func (s *Store) Write(database, key string, blob []byte, buildMeta func(prevVersion int64) *dbtypes.EntityMetadata) (*dbtypes.EntityMetadata, error) {
	lock, err := s.lockFor(database, key)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire exclusive lock: %w", err)
	}
	defer lock.Unlock()

	_, prevMeta, err := s.readLocked(database, key)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrCorrupt) {
		return nil, err
	}
	var prevVersion int64
	if prevMeta != nil {
		prevVersion = prevMeta.Version
	}

	meta := buildMeta(prevVersion)

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	if err := atomicWrite(s.blobPath(database, key), blob); err != nil {
		return nil, dberr.Wrap(dberr.Internal, "write blob", err)
	}
	if err := atomicWrite(s.metaPath(database, key), metaBytes); err != nil {
		return nil, dberr.Wrap(dberr.Internal, "write metadata", err)
	}

	return meta, nil
}

// atomicWrite writes data to a temp file in dir(target), fsyncs it, and
// renames it over target. Read never observes a *.tmp* file because the
// rename is atomic within the same filesystem.
func atomicWrite(target string, data []byte) error {
	dir := filepath.Dir(target)
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Errorf("draw temp suffix: %w", err)
	}
	tmp := filepath.Join(dir, filepath.Base(target)+".tmp-"+hex.EncodeToString(suffix))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
