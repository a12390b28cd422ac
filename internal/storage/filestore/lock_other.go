//go:build !unix

package filestore

import "os"

// Advisory locks are unix-only; elsewhere the version check alone guards
// concurrent writers.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) error { return nil }
