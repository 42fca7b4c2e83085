// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state persists bulk operation records so interrupted runs
// can be inspected, resumed, or cancelled later.
//
// Each operation is one JSON file under the state directory. Writes go
// through a temp file, fsync, and atomic rename, and are serialized by
// a single mutex inside the Store. An advisory flock per operation
// fences two CLI invocations off the same record: the second one gets
// ErrOperationLocked instead of corrupting it.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/gantry/services/admin/bulk"
)

// Store reads and writes operation state files.
//
// # Thread Safety
//
// All methods are safe for concurrent use; writes are serialized by an
// internal mutex, so concurrent item resolutions never lose updates.
type Store struct {
	dir    string
	mu     sync.Mutex
	locker FileLocker
	held   map[string]*os.File
}

// DefaultDir returns the default state directory, ~/.gantry/operations.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolving home directory: %v", ErrStateIO, err)
	}
	return filepath.Join(home, ".gantry", "operations"), nil
}

// NewStore creates a store rooted at dir, creating the directory when
// missing. An empty dir selects DefaultDir. A leading "~" expands to
// the user's home directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	} else {
		dir = expandPath(dir)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: creating state directory %s: %v", ErrStateIO, dir, err)
	}

	return &Store{
		dir:    dir,
		locker: newFileLocker(),
		held:   make(map[string]*os.File),
	}, nil
}

// Dir returns the directory the store persists into.
func (s *Store) Dir() string {
	return s.dir
}

// Create persists a new operation record.
//
// Description:
//
//	Allocates a fresh operation id and writes the record with status
//	Pending and every item pending. The record is durable before
//	Create returns, so a crash immediately afterwards still leaves a
//	resumable operation.
//
// Inputs:
//
//	ctx - Unused today; kept for interface stability.
//	operationType - Which bulk operation this record belongs to.
//	params - Operation parameters echoed back verbatim on Load.
//	items - Target projects, all recorded as pending.
//
// Outputs:
//
//	*OperationState - The persisted record, including the new id.
//	error - ErrStateIO on write failure.
func (s *Store) Create(ctx context.Context, operationType OperationType, params Params, items []bulk.ProcessItem) (*OperationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	st := &OperationState{
		Version:       SchemaVersion,
		OperationID:   uuid.NewString(),
		OperationType: operationType,
		Status:        StatusPending,
		Params:        params,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         make([]ItemState, len(items)),
	}
	for i, it := range items {
		st.Items[i] = ItemState{
			ProjectID:   it.ProjectID,
			ProjectName: it.ProjectName,
			Status:      ItemPending,
		}
	}

	if err := s.save(st); err != nil {
		return nil, err
	}
	slog.Debug("created operation state",
		slog.String("operation_id", st.OperationID),
		slog.String("operation_type", string(operationType)),
		slog.Int("items", len(items)))
	return st, nil
}

// Load reads an operation record.
//
// Description:
//
//	A missing file is ErrOperationNotFound; a file that exists but
//	cannot be decoded is ErrStateDecode. The two are never conflated,
//	so a corrupted record is reported as corruption rather than
//	silently treated as absent.
//
// Outputs:
//
//	*OperationState - The decoded record.
//	error - ErrOperationNotFound, ErrStateDecode, or ErrStateIO.
func (s *Store) Load(ctx context.Context, operationID string) (*OperationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(operationID)
}

// Record persists one item's resolution.
//
// Description:
//
//	Overwrites the item's stored outcome, clearing fields from any
//	previous run so a resumed item that now succeeds does not keep its
//	old error text. The operation status is untouched; lifecycle
//	transitions are explicit (MarkInProgress, Finalize,
//	MarkCancelled).
//
// Inputs:
//
//	ctx - Unused today; kept for interface stability.
//	operationID - The record to update.
//	projectID - Which item resolved.
//	res - The resolution to persist.
//
// Outputs:
//
//	error - ErrOperationNotFound, ErrStateIO, ErrStateDecode, or a
//	        plain error when the project is not part of the operation.
func (s *Store) Record(ctx context.Context, operationID, projectID string, res bulk.ItemResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(operationID)
	if err != nil {
		return err
	}

	idx := -1
	for i := range st.Items {
		if st.Items[i].ProjectID == projectID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("operation %s has no item for project %s", operationID, projectID)
	}

	it := &st.Items[idx]
	switch res.Kind {
	case bulk.ResultSuccess:
		it.Status = ItemSuccess
		it.Reason = ""
		it.Error = ""
	case bulk.ResultSkipped:
		it.Status = ItemSkipped
		it.Reason = res.Reason
		it.Error = ""
	case bulk.ResultFailed:
		it.Status = ItemFailed
		it.Reason = ""
		it.Error = errString(res.Err)
	default:
		return fmt.Errorf("unknown result kind %q for project %s", res.Kind, projectID)
	}
	it.Attempts = res.Attempts

	st.UpdatedAt = time.Now().UTC()
	return s.save(st)
}

// MarkInProgress transitions the operation to InProgress.
//
// Allowed from Pending (fresh run), InProgress (crashed run being
// resumed), and Failed (resume after a partial failure). Completed and
// cancelled records are rejected with ErrInvalidTransition.
func (s *Store) MarkInProgress(ctx context.Context, operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(operationID)
	if err != nil {
		return err
	}
	switch st.Status {
	case StatusPending, StatusInProgress, StatusFailed:
		st.Status = StatusInProgress
	default:
		return fmt.Errorf("%w: cannot start %s operation %s",
			ErrInvalidTransition, st.Status, operationID)
	}
	st.UpdatedAt = time.Now().UTC()
	return s.save(st)
}

// Finalize settles the operation's terminal status from its items.
//
// Description:
//
//	Completed asserts every item succeeded or was skipped; any failed
//	or still-pending item makes the operation Failed, which keeps it
//	resumable. Finalizing a completed or cancelled record is
//	ErrInvalidTransition.
//
// Outputs:
//
//	*OperationState - The record with its final status.
//	error - ErrInvalidTransition, ErrOperationNotFound, ErrStateIO,
//	        or ErrStateDecode.
func (s *Store) Finalize(ctx context.Context, operationID string) (*OperationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(operationID)
	if err != nil {
		return nil, err
	}
	if st.Status == StatusCompleted || st.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: cannot finalize %s operation %s",
			ErrInvalidTransition, st.Status, operationID)
	}

	_, _, failed, pending := st.Counts()
	if failed > 0 || pending > 0 {
		st.Status = StatusFailed
	} else {
		st.Status = StatusCompleted
	}
	st.UpdatedAt = time.Now().UTC()
	if err := s.save(st); err != nil {
		return nil, err
	}
	return st, nil
}

// MarkCancelled transitions the operation to Cancelled.
//
// Only pending and in-progress operations can be cancelled. When the
// operation is being run by another process, the caller gets
// ErrOperationLocked instead; the running process owns the record.
func (s *Store) MarkCancelled(ctx context.Context, operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.guardLocked(operationID)
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}

	st, err := s.load(operationID)
	if err != nil {
		return err
	}
	if st.Status != StatusPending && st.Status != StatusInProgress {
		return fmt.Errorf("%w: cannot cancel %s operation %s",
			ErrInvalidTransition, st.Status, operationID)
	}
	st.Status = StatusCancelled
	st.UpdatedAt = time.Now().UTC()
	return s.save(st)
}

// Delete removes an operation record and its lock file.
//
// Deliberately does not decode the record first: deleting is how a
// corrupted file gets cleaned up. A record locked by a running process
// is refused with ErrOperationLocked.
func (s *Store) Delete(ctx context.Context, operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := uuid.Parse(operationID); err != nil {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
	}

	release, err := s.guardLocked(operationID)
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}

	path := s.operationPath(operationID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: deleting operation %s: %v", ErrStateIO, operationID, err)
	}
	if err := os.Remove(s.lockPath(operationID)); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove operation lock file",
			slog.String("operation_id", operationID),
			slog.Any("error", err))
	}
	return nil
}

// List returns summaries of every readable operation record, most
// recently updated first. Corrupted files are skipped with a warning
// rather than failing the whole listing.
func (s *Store) List(ctx context.Context) ([]OperationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading state directory %s: %v", ErrStateIO, s.dir, err)
	}

	var summaries []OperationSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		st, err := s.load(id)
		if err != nil {
			if errors.Is(err, ErrStateDecode) {
				slog.Warn("skipping unreadable operation state",
					slog.String("file", entry.Name()),
					slog.Any("error", err))
			}
			continue
		}
		summaries = append(summaries, st.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Acquire takes the operation's advisory lock for the duration of a
// run. A second process holding it surfaces as ErrOperationLocked.
// Acquiring a lock this store already holds is a no-op.
func (s *Store) Acquire(operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := uuid.Parse(operationID); err != nil {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
	}
	if _, ok := s.held[operationID]; ok {
		return nil
	}

	f, err := s.lockFile(operationID)
	if err != nil {
		return err
	}
	s.held[operationID] = f
	slog.Debug("acquired operation lock", slog.String("operation_id", operationID))
	return nil
}

// Release drops a lock previously taken with Acquire. Releasing a lock
// that is not held is a no-op.
func (s *Store) Release(operationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.held[operationID]
	if !ok {
		return
	}
	delete(s.held, operationID)
	if err := s.locker.Unlock(f); err != nil {
		slog.Warn("failed to unlock operation",
			slog.String("operation_id", operationID),
			slog.Any("error", err))
	}
	_ = f.Close()
	// The lock file itself stays on disk: removing it would race a
	// concurrent open of the same path.
	slog.Debug("released operation lock", slog.String("operation_id", operationID))
}

// ----------------------------------------------------------------------------
// Internal helpers
// ----------------------------------------------------------------------------

func (s *Store) operationPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.dir, id+".lock")
}

// load reads and decodes one record. Caller holds s.mu.
func (s *Store) load(id string) (*OperationState, error) {
	// Ids come from user input; parsing keeps arbitrary paths out of
	// the state directory.
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}

	data, err := os.ReadFile(s.operationPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
		}
		return nil, fmt.Errorf("%w: reading operation %s: %v", ErrStateIO, id, err)
	}

	var st OperationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: operation %s: %v", ErrStateDecode, id, err)
	}
	if st.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: operation %s has schema version %d, want %d",
			ErrStateDecode, id, st.Version, SchemaVersion)
	}
	return &st, nil
}

// save writes the record atomically: temp file in the same directory,
// fsync, rename over the target. Caller holds s.mu.
func (s *Store) save(st *OperationState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding operation %s: %v", ErrStateIO, st.OperationID, err)
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("%w: creating state directory %s: %v", ErrStateIO, s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, st.OperationID+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for operation %s: %v", ErrStateIO, st.OperationID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: writing operation %s: %v", ErrStateIO, st.OperationID, err)
	}

	if err := os.Rename(tmpName, s.operationPath(st.OperationID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: replacing operation %s: %v", ErrStateIO, st.OperationID, err)
	}
	return nil
}

// lockFile opens (creating if needed) and flocks the operation's lock
// file. Caller holds s.mu and owns the returned handle.
func (s *Store) lockFile(id string) (*os.File, error) {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: creating state directory %s: %v", ErrStateIO, s.dir, err)
	}
	f, err := os.OpenFile(s.lockPath(id), os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, fmt.Errorf("%w: opening lock file for operation %s: %v", ErrStateIO, id, err)
	}
	if err := s.locker.Lock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrFileLocked) {
			return nil, fmt.Errorf("%w: operation %s", ErrOperationLocked, id)
		}
		return nil, fmt.Errorf("%w: locking operation %s: %v", ErrStateIO, id, err)
	}
	return f, nil
}

// guardLocked briefly takes the operation lock for a standalone
// mutation when this store does not already hold it. The returned
// release func is nil when the lock was already ours. Caller holds
// s.mu.
func (s *Store) guardLocked(id string) (func(), error) {
	if _, ok := s.held[id]; ok {
		return nil, nil
	}
	f, err := s.lockFile(id)
	if err != nil {
		return nil, err
	}
	return func() {
		_ = s.locker.Unlock(f)
		_ = f.Close()
	}, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
