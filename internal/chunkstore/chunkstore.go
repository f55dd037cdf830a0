// Package chunkstore persists upload chunks in a content-addressable blob
// backend and reassembles an ordered chunk sequence into one file.
package chunkstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
)

const DefaultZone = "chunks"

// BackendError carries the failing operation, the affected backend path and
// the underlying cause, for operational logging. End clients only ever see a
// generic failure code.
type BackendError struct {
	Op   string
	Path string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed for %q: %v", e.Op, e.Path, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ChunkStore stores chunks by logical key under hashed backend paths inside
// one zone, and concatenates ordered chunk sequences into a destination file.
type ChunkStore struct {
	backend Backend
	zone    string
}

func New(backend Backend, zone string) *ChunkStore {
	if zone == "" {
		zone = DefaultZone
	}
	return &ChunkStore{backend: backend, zone: zone}
}

// ChunkKey builds the stable physical key for one chunk of a session:
// "{sessionKey}.{chunkIndex}". Session keys are unique, so chunk keys never
// collide across concurrent sessions.
func (s *ChunkStore) ChunkKey(sessionKey string, index int) string {
	return fmt.Sprintf("%s.%d", sessionKey, index)
}

// HashedPath maps a logical key onto a sharded backend path inside a zone so
// no single directory accumulates every blob.
func HashedPath(zone, key string) string {
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	return path.Join(zone, digest[:1], digest[:2], key)
}

// HashedLocation is HashedPath within this store's zone.
func (s *ChunkStore) HashedLocation(key string) string {
	return HashedPath(s.zone, key)
}

func (s *ChunkStore) Write(ctx context.Context, key string, data []byte) error {
	loc := s.HashedLocation(key)
	if err := s.backend.Store(ctx, loc, bytes.NewReader(data)); err != nil {
		return &BackendError{Op: "write", Path: loc, Err: err}
	}
	return nil
}

func (s *ChunkStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	loc := s.HashedLocation(key)
	reader, err := s.backend.Get(ctx, loc)
	if err != nil {
		return nil, &BackendError{Op: "read", Path: loc, Err: err}
	}
	return reader, nil
}

func (s *ChunkStore) Delete(ctx context.Context, key string) error {
	loc := s.HashedLocation(key)
	if err := s.backend.Delete(ctx, loc); err != nil {
		return &BackendError{Op: "delete", Path: loc, Err: err}
	}
	return nil
}

func (s *ChunkStore) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := s.backend.Exists(ctx, s.HashedLocation(key))
	if err != nil {
		return false, &BackendError{Op: "stat", Path: s.HashedLocation(key), Err: err}
	}
	return exists, nil
}

// Concatenate streams the chunks named by orderedKeys, in that order, into
// destPath. The operation is all-or-nothing for the sources: any read failure
// aborts before a single source is deleted, so a failed concatenation can be
// retried against the untouched chunk set. When deleteSources is set, sources
// are removed only after the whole copy was synced to disk; individual delete
// failures demote to warnings because the assembled file is already complete.
// The caller owns destPath and discards it when the returned status is failed.
func (s *ChunkStore) Concatenate(ctx context.Context, orderedKeys []string, destPath string, deleteSources bool) *OpStatus {
	status := NewOpStatus()

	dest, err := os.Create(destPath)
	if err != nil {
		status.Fatal("concat-dest-unwritable", destPath, err)
		return status
	}

	for _, key := range orderedKeys {
		loc := s.HashedLocation(key)
		reader, err := s.backend.Get(ctx, loc)
		if err != nil {
			status.Fatal("concat-source-unreadable", loc, err)
			break
		}
		_, err = io.Copy(dest, reader)
		reader.Close()
		if err != nil {
			status.Fatal("concat-copy-failed", loc, err)
			break
		}
	}

	if !status.OK() {
		dest.Close()
		return status
	}

	if err := dest.Sync(); err != nil {
		dest.Close()
		status.Fatal("concat-sync-failed", destPath, err)
		return status
	}
	if err := dest.Close(); err != nil {
		status.Fatal("concat-close-failed", destPath, err)
		return status
	}

	if deleteSources {
		for _, key := range orderedKeys {
			loc := s.HashedLocation(key)
			if err := s.backend.Delete(ctx, loc); err != nil {
				status.Warn("concat-source-delete-failed", loc, err)
			}
		}
	}

	return status
}
