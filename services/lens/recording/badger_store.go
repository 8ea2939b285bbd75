// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recording

import (
	"context"
	"errors"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/objectlens/services/lens/storage/badger"
)

const (
	recordingPrefix = "rec/"
	framePrefix     = "frame/"
)

func recordingKey(id string) []byte {
	return []byte(recordingPrefix + id)
}

func framesPrefix(id string) []byte {
	return []byte(framePrefix + id + "/")
}

// frameKey zero-pads the index so key order is index order.
func frameKey(id string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", framePrefix, id, index))
}

// BadgerStore keeps recordings in an embedded BadgerDB.
//
// # Description
//
// Layout: "rec/<id>" holds the Recording, "frame/<id>/<index>" each Frame.
// AppendFrame bumps the recording's FrameCount in the same transaction.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open database. Close closes it.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens the database described by cfg.
func OpenBadgerStore(cfg badger.Config) (*BadgerStore, error) {
	db, err := badger.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewBadgerStore(db), nil
}

// SaveRecording implements Store.
func (s *BadgerStore) SaveRecording(ctx context.Context, rec Recording) error {
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("encoding recording: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set(recordingKey(rec.ID), data)
	})
}

func getRecording(txn *badgerdb.Txn, id string) (Recording, error) {
	item, err := txn.Get(recordingKey(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return Recording{}, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return Recording{}, err
	}
	var rec Recording
	err = item.Value(func(val []byte) error {
		return decode(val, &rec)
	})
	return rec, err
}

// AppendFrame implements Store.
func (s *BadgerStore) AppendFrame(ctx context.Context, id string, frame Frame) error {
	data, err := encode(frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		rec, err := getRecording(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Set(frameKey(id, frame.Index), data); err != nil {
			return err
		}
		rec.FrameCount++
		recData, err := encode(rec)
		if err != nil {
			return err
		}
		return txn.Set(recordingKey(id), recData)
	})
}

// GetRecording implements Store.
func (s *BadgerStore) GetRecording(ctx context.Context, id string) (Recording, error) {
	var rec Recording
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		var err error
		rec, err = getRecording(txn, id)
		return err
	})
	return rec, err
}

// ListRecordings implements Store.
func (s *BadgerStore) ListRecordings(ctx context.Context) ([]Recording, error) {
	var recs []Recording
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		return badger.ScanPrefix(txn, []byte(recordingPrefix), func(_, value []byte) error {
			var rec Recording
			if err := decode(value, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

// Frames implements Store.
func (s *BadgerStore) Frames(ctx context.Context, id string) ([]Frame, error) {
	var frames []Frame
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		if _, err := getRecording(txn, id); err != nil {
			return err
		}
		return badger.ScanPrefix(txn, framesPrefix(id), func(_, value []byte) error {
			var f Frame
			if err := decode(value, &f); err != nil {
				return err
			}
			frames = append(frames, f)
			return nil
		})
	})
	return frames, err
}

// DeleteRecording implements Store. Deleting an unknown recording returns
// ErrRecordingNotFound.
func (s *BadgerStore) DeleteRecording(ctx context.Context, id string) error {
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		if _, err := getRecording(txn, id); err != nil {
			return err
		}
		if err := badger.DeletePrefix(txn, framesPrefix(id)); err != nil {
			return err
		}
		return txn.Delete(recordingKey(id))
	})
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
