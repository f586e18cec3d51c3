// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package filelock provides non-blocking advisory file locks.
//
// A lock serializes whole pipeline cycles across process invocations, for
// example concurrent cron triggers. Acquisition never waits: if another
// process holds the lock, Acquire fails immediately with ErrAlreadyLocked.
package filelock

import (
	"errors"
	"os"
	"syscall"
)

// ErrAlreadyLocked indicates the lock is currently held by another process.
var ErrAlreadyLocked = errors.New("already locked")

// Lock is a held advisory lock. It must be released on every exit path to
// avoid deadlocking subsequent runs.
type Lock struct {
	f *os.File
}

// Acquire obtains a non-blocking exclusive lock on path. If payload is
// non-empty, it replaces the sentinel file contents; the payload is purely
// diagnostic and takes no part in the locking protocol.
func Acquire(path string, payload string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			return nil, errors.Join(err, closeErr)
		}
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrAlreadyLocked
		}
		return nil, err
	}
	l := &Lock{f: f}
	if payload != "" {
		if err := l.writePayload(payload); err != nil {
			return nil, errors.Join(err, l.Release())
		}
	}
	return l, nil
}

func (l *Lock) writePayload(payload string) error {
	if err := l.f.Truncate(0); err != nil {
		return err
	}
	if _, err := l.f.Seek(0, 0); err != nil {
		return err
	}
	_, err := l.f.WriteString(payload)
	return err
}

// Release unlocks and closes the sentinel file.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN); err != nil {
		if closeErr := l.f.Close(); closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}
	return l.f.Close()
}

// IsLocked reports whether path is currently locked by another process.
func IsLocked(path string) bool {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN)
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false
}
