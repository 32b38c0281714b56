// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var ErrStorageUnavailable = errors.New("identity storage unavailable")

// KV is local durable key/value storage
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error

	// SetIfAbsent stores value unless key already holds a non-empty value,
	// and returns whichever value is stored afterwards.
	SetIfAbsent(key, value string) (string, error)
}

// MemoryKV keeps values for the life of the process
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryKV) SetIfAbsent(key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.values[key]; ok && cur != "" {
		return cur, nil
	}
	m.values[key] = value
	return value, nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Lock file timing for FileKV writers
const (
	lockRetry = 10 * time.Millisecond
	lockWait  = 5 * time.Second
	lockStale = 30 * time.Second
)

// FileKV stores a flat JSON object in one file. Every Get re-reads the
// file so separate processes sharing a profile see each other's writes.
// Writers hold <path>.lock (created with O_EXCL) across load, change and
// save, and replace the file with an atomic rename.
type FileKV struct {
	mu   sync.Mutex
	path string
}

func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

// DefaultProfilePath returns <user config dir>/fingervote/<profile>.json
func DefaultProfilePath(profile string) (string, error) {
	if profile == "" || strings.ContainsAny(profile, `/\`) || profile == "." || profile == ".." {
		return "", fmt.Errorf("invalid profile name %q", profile)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return filepath.Join(dir, "fingervote", profile+".json"), nil
}

func (f *FileKV) Path() string {
	return f.path
}

func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock()
	if err != nil {
		return err
	}
	defer unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	if cur, ok := values[key]; ok && cur == value {
		return nil
	}
	values[key] = value
	return f.save(values)
}

func (f *FileKV) SetIfAbsent(key, value string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock()
	if err != nil {
		return "", err
	}
	defer unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}
	if cur, ok := values[key]; ok && cur != "" {
		return cur, nil
	}
	values[key] = value
	if err := f.save(values); err != nil {
		return "", err
	}
	return value, nil
}

func (f *FileKV) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock()
	if err != nil {
		return err
	}
	defer unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.save(values)
}

// lock takes the cross-process write lock for the profile file
func (f *FileKV) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	lockPath := f.path + ".lock"
	deadline := time.Now().Add(lockWait)
	for {
		lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			lf.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}

		// A crashed writer leaves its lock behind
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStale {
			os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s is held by another process", ErrStorageUnavailable, lockPath)
		}
		time.Sleep(lockRetry)
	}
}

func (f *FileKV) load() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: corrupt %s: %w", ErrStorageUnavailable, f.path, err)
	}
	return values, nil
}

func (f *FileKV) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, ".fingervote-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}
