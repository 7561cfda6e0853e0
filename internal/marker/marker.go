// Package marker implements the §6.4 marker store: the single
// high-water-mark integer persisted between invocations under the local
// VCS's config facility.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package marker

import "strconv"

const configKey = "dokuwiki.lastRevision"

// Store reads and writes the marker via a git config accessor. It is
// intentionally narrow (two methods) rather than exposing the whole
// local-VCS facade, so callers can't accidentally treat the marker as
// read-write-read-write within one phase; spec.md §5 requires the write
// to happen only after all of a phase's side-effecting operations have
// succeeded.
type Store struct {
	get func(key string) (string, error)
	set func(key, value string) error
}

// ConfigAccessor is the subset of localvcs.Facade the marker store needs.
type ConfigAccessor interface {
	ConfigGetInt(key string) (int64, bool, error)
	ConfigSet(key, value string) error
}

// New builds a Store backed by a ConfigAccessor (normally a
// localvcs.Facade).
func New(accessor ConfigAccessor) *Store {
	return &Store{
		get: func(key string) (string, error) {
			v, ok, err := accessor.ConfigGetInt(key)
			if err != nil || !ok {
				return "", err
			}
			return strconv.FormatInt(v, 10), nil
		},
		set: accessor.ConfigSet,
	}
}

// Load returns the persisted high-water mark and whether one exists yet.
func (s *Store) Load() (int64, bool, error) {
	raw, err := s.get(configKey)
	if err != nil {
		return 0, false, err
	}
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Save writes the new high-water mark.
func (s *Store) Save(version int64) error {
	return s.set(configKey, strconv.FormatInt(version, 10))
}
