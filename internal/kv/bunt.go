// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/buntdb"
)

// =============================================================================
// BUNTDB STORE
// =============================================================================

// BuntStore stores keys in an append-only buntdb file.
type BuntStore struct {
	db *buntdb.DB
}

// OpenBunt opens the buntdb file at path. ":memory:" keeps it in memory.
func OpenBunt(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}
	if err := db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    1 << 20,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}
	return &BuntStore{db: db}, nil
}

func mapBuntErr(err error) error {
	if errors.Is(err, buntdb.ErrDatabaseClosed) {
		return ErrClosed
	}
	return err
}

func (s *BuntStore) Get(key string) (string, bool, error) {
	var value string
	found := false
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		return "", false, mapBuntErr(err)
	}
	return value, found, nil
}

func (s *BuntStore) Set(key, value string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, nil)
		return err
	})
	return mapBuntErr(err)
}

func (s *BuntStore) Delete(key string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
	return mapBuntErr(err)
}

func (s *BuntStore) Keys(prefix string) ([]string, error) {
	keys := []string{}
	// Walk from the prefix instead of AscendKeys: titles may contain the
	// * and ? pattern characters.
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", prefix, func(key, _ string) bool {
			if !strings.HasPrefix(key, prefix) {
				return false
			}
			keys = append(keys, key)
			return true
		})
	})
	if err != nil {
		return nil, mapBuntErr(err)
	}
	return keys, nil
}

func (s *BuntStore) Close() error {
	err := s.db.Close()
	if errors.Is(err, buntdb.ErrDatabaseClosed) {
		return nil
	}
	return err
}
