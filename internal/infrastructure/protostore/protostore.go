// Package protostore implements the write-tmp-then-rename durable storage
// protocol spec.md §5 mandates for backup writes: "proto → tmp →
// rename(tmp, primary)... if between rename and deletion of an override
// file, the override takes precedence on next read." A small,
// single-purpose infrastructure adapter behind a narrow interface, in
// keeping with the rest of internal/infrastructure.
package protostore

import (
	"os"
	"path/filepath"

	"cobalt/pkg/cobalterr"
)

// ConsistentProtoStore durably persists one serialized blob at path,
// guaranteeing that a reader never observes a partially written file. It
// additionally supports a sibling "override" file that, if present, takes
// precedence over the primary on Load — this is how a crash between
// rename(tmp, primary) and the caller's cleanup of a previous override
// surfaces: the override simply gets read again next time.
type ConsistentProtoStore struct {
	path         string
	tmpPath      string
	overridePath string
}

// New returns a store backed by path (and path+".tmp" / path+".override").
func New(path string) *ConsistentProtoStore {
	return &ConsistentProtoStore{
		path:         path,
		tmpPath:      path + ".tmp",
		overridePath: path + ".override",
	}
}

// Save writes data via the tmp-then-rename protocol. Any pre-existing
// override file is left in place; callers that intend to supersede an
// override should call ClearOverride first.
func (s *ConsistentProtoStore) Save(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return cobalterr.NewWriteFailed("failed to create store directory", err)
	}
	if err := os.WriteFile(s.tmpPath, data, 0o644); err != nil {
		return cobalterr.NewWriteFailed("failed to write tmp file", err)
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return cobalterr.NewWriteFailed("failed to rename tmp file into place", err)
	}
	return nil
}

// Load reads the override file if present, otherwise the primary file. A
// missing primary is not an error: callers should treat it as "no prior
// state" and construct a fresh store.
func (s *ConsistentProtoStore) Load() ([]byte, bool, error) {
	if data, err := os.ReadFile(s.overridePath); err == nil {
		return data, true, nil
	} else if !os.IsNotExist(err) {
		return nil, false, cobalterr.NewWriteFailed("failed to read override file", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, cobalterr.NewWriteFailed("failed to read primary file", err)
	}
	return data, true, nil
}

// SaveOverride writes the override file directly (no tmp indirection:
// overrides are a manual operator escape hatch, not the hot write path).
func (s *ConsistentProtoStore) SaveOverride(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.overridePath), 0o755); err != nil {
		return cobalterr.NewWriteFailed("failed to create store directory", err)
	}
	if err := os.WriteFile(s.overridePath, data, 0o644); err != nil {
		return cobalterr.NewWriteFailed("failed to write override file", err)
	}
	return nil
}

// ClearOverride removes the override file, if any, so subsequent Loads
// fall back to the primary.
func (s *ConsistentProtoStore) ClearOverride() error {
	if err := os.Remove(s.overridePath); err != nil && !os.IsNotExist(err) {
		return cobalterr.NewWriteFailed("failed to remove override file", err)
	}
	return nil
}
