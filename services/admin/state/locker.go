// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"os"
)

// FileLocker abstracts platform-specific file locking operations.
//
// # Description
//
// Provides a unified interface for advisory locking across Unix and
// Windows. Unix uses syscall.Flock; the lock is attached to the open
// file description, so it is released automatically when the process
// exits. That property is what makes stale-lock cleanup unnecessary
// here: a crashed run leaves no lock behind.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use on different files.
// Locking the same file from multiple goroutines is undefined behavior.
type FileLocker interface {
	// Lock acquires an exclusive lock on the file.
	//
	// Non-blocking: returns ErrFileLocked immediately when another
	// process holds the lock.
	Lock(f *os.File) error

	// Unlock releases the lock on the file.
	//
	// Safe to call even if the file is not locked.
	Unlock(f *os.File) error
}

// newFileLocker creates a platform-appropriate FileLocker.
func newFileLocker() FileLocker {
	return newPlatformLocker()
}
