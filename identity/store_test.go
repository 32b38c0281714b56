// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// brokenKV fails every operation
type brokenKV struct {
	sets int
}

func (b *brokenKV) Get(key string) (string, bool, error) {
	return "", false, ErrStorageUnavailable
}

func (b *brokenKV) Set(key, value string) error {
	b.sets++
	return ErrStorageUnavailable
}

func (b *brokenKV) SetIfAbsent(key, value string) (string, error) {
	b.sets++
	return "", ErrStorageUnavailable
}

func (b *brokenKV) Delete(key string) error {
	return ErrStorageUnavailable
}

// readOnlyKV reads fine but refuses writes
type readOnlyKV struct {
	*MemoryKV
}

func (r readOnlyKV) Set(key, value string) error {
	return ErrStorageUnavailable
}

func (r readOnlyKV) SetIfAbsent(key, value string) (string, error) {
	return "", ErrStorageUnavailable
}

func TestStore_GetOrCreate_Idempotent(t *testing.T) {
	kv := NewMemoryKV()
	store := NewStore(kv)

	first, err := store.GetOrCreate()
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("Expected UUID token, got %q", first)
	}

	for i := 0; i < 3; i++ {
		again, _ := store.GetOrCreate()
		if again != first {
			t.Errorf("Expected %q, got %q", first, again)
		}
	}

	// A second Store over the same storage sees the same identity
	other, _ := NewStore(kv).GetOrCreate()
	if other != first {
		t.Errorf("Expected persisted token %q, got %q", first, other)
	}
}

func TestStore_GetOrCreate_Concurrent(t *testing.T) {
	store := NewStore(NewMemoryKV())

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = store.GetOrCreate()
		}(i)
	}
	wg.Wait()

	for _, tok := range tokens {
		if tok != tokens[0] {
			t.Fatalf("Expected one token, got %q and %q", tokens[0], tok)
		}
	}
}

func TestStore_StorageUnavailable(t *testing.T) {
	t.Run("unreadable storage is never written", func(t *testing.T) {
		kv := &brokenKV{}
		store := NewStore(kv)

		tok, err := store.GetOrCreate()
		if err != nil {
			t.Fatalf("GetOrCreate should not fail: %v", err)
		}
		if tok == "" {
			t.Fatal("Expected ephemeral token")
		}
		if kv.sets != 0 {
			t.Errorf("Expected no writes, got %d", kv.sets)
		}
		if !store.Ephemeral() {
			t.Error("Expected ephemeral store")
		}
		again, _ := store.GetOrCreate()
		if again != tok {
			t.Errorf("Ephemeral token changed: %q -> %q", tok, again)
		}
	})

	t.Run("unwritable storage keeps token for process", func(t *testing.T) {
		store := NewStore(readOnlyKV{NewMemoryKV()})

		tok, err := store.GetOrCreate()
		if err != nil {
			t.Fatalf("GetOrCreate should not fail: %v", err)
		}
		again, _ := store.GetOrCreate()
		if again != tok || !store.Ephemeral() {
			t.Errorf("Expected stable ephemeral token, got %q then %q", tok, again)
		}

		if err := store.MarkVoted("p1"); err != nil {
			t.Errorf("MarkVoted on ephemeral store failed: %v", err)
		}
		m, ok := store.VotedMarker()
		if !ok || m.ParticipantID != "p1" {
			t.Errorf("Expected in-memory marker, got %+v %v", m, ok)
		}
	})
}

func TestStore_VotedMarker(t *testing.T) {
	kv := NewMemoryKV()
	store := NewStore(kv)

	if _, ok := store.VotedMarker(); ok {
		t.Fatal("Expected no marker before voting")
	}

	if err := store.MarkVoted("p1"); err != nil {
		t.Fatalf("MarkVoted failed: %v", err)
	}
	if err := store.MarkVoted("p1"); err != nil {
		t.Fatalf("Repeated MarkVoted failed: %v", err)
	}

	// Fresh Store over the same storage reads the persisted marker
	m, ok := NewStore(kv).VotedMarker()
	if !ok || m.ParticipantID != "p1" {
		t.Errorf("Expected persisted marker for p1, got %+v %v", m, ok)
	}

	// A marker written under another token is ignored
	kv.Set(KeyVoterID, "someone-else")
	if _, ok := NewStore(kv).VotedMarker(); ok {
		t.Error("Expected marker for a different token to be ignored")
	}
}

func TestStore_AdminToken(t *testing.T) {
	store := NewStore(NewMemoryKV())

	if _, ok := store.AdminToken(); ok {
		t.Fatal("Expected no admin token")
	}
	if err := store.SetAdminToken(""); err == nil {
		t.Error("Expected error for empty token")
	}
	if err := store.SetAdminToken("jwt"); err != nil {
		t.Fatalf("SetAdminToken failed: %v", err)
	}
	if tok, ok := store.AdminToken(); !ok || tok != "jwt" {
		t.Errorf("Expected jwt, got %q %v", tok, ok)
	}
	if err := store.ClearAdminToken(); err != nil {
		t.Fatalf("ClearAdminToken failed: %v", err)
	}
	if _, ok := store.AdminToken(); ok {
		t.Error("Expected admin token cleared")
	}
}

func TestFileKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "default.json")
	kv := NewFileKV(path)

	if _, ok, err := kv.Get(KeyVoterID); err != nil || ok {
		t.Fatalf("Expected empty store, got ok=%v err=%v", ok, err)
	}

	if err := kv.Set(KeyVoterID, "token-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected file to exist: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	// Separate instance, same file
	v, ok, err := NewFileKV(path).Get(KeyVoterID)
	if err != nil || !ok || v != "token-1" {
		t.Errorf("Expected token-1, got %q ok=%v err=%v", v, ok, err)
	}

	if err := kv.Delete(KeyVoterID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := kv.Get(KeyVoterID); ok {
		t.Error("Expected key deleted")
	}
}

func TestFileKV_CorruptFileIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := NewFileKV(path).Get(KeyVoterID)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Expected ErrStorageUnavailable, got %v", err)
	}

	// The Store must not overwrite what it could not read
	store := NewStore(NewFileKV(path))
	if _, err := store.GetOrCreate(); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Errorf("Expected file untouched, got %q", data)
	}
}

func TestDefaultProfilePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	path, err := DefaultProfilePath("work")
	if err != nil {
		t.Fatalf("DefaultProfilePath failed: %v", err)
	}
	if filepath.Base(path) != "work.json" || filepath.Base(filepath.Dir(path)) != "fingervote" {
		t.Errorf("Unexpected path %q", path)
	}

	for _, bad := range []string{"", "..", "a/b"} {
		if _, err := DefaultProfilePath(bad); err == nil {
			t.Errorf("Expected error for profile %q", bad)
		}
	}
}

func TestStore_GetOrCreate_SharedProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.json")

	// B creates the profile token while A is between its Get and its write
	storeA := NewStore(NewFileKV(path))
	storeB := NewStore(NewFileKV(path))
	var tokenB string
	storeA.newToken = func() (string, error) {
		var err error
		tokenB, err = storeB.GetOrCreate()
		if err != nil {
			t.Errorf("GetOrCreate (B) failed: %v", err)
		}
		return "token-A", nil
	}

	tokenA, err := storeA.GetOrCreate()
	if err != nil {
		t.Fatalf("GetOrCreate (A) failed: %v", err)
	}
	if tokenA != tokenB {
		t.Errorf("Expected one identity per profile, A holds %q and B holds %q", tokenA, tokenB)
	}

	stored, _, _ := NewFileKV(path).Get(KeyVoterID)
	if stored != tokenA {
		t.Errorf("Expected profile file to hold %q, got %q", tokenA, stored)
	}
	if storeA.Ephemeral() || storeB.Ephemeral() {
		t.Error("Expected persisted identities")
	}
}

func TestStore_GetOrCreate_ManyProcesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.json")

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = NewStore(NewFileKV(path)).GetOrCreate()
		}(i)
	}
	wg.Wait()

	stored, _, _ := NewFileKV(path).Get(KeyVoterID)
	for i, tok := range tokens {
		if tok != stored {
			t.Errorf("Store %d holds %q, profile holds %q", i, tok, stored)
		}
	}
	if _, err := os.Stat(path + ".lock"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected lock released, got %v", err)
	}
}

func TestFileKV_SetIfAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.json")
	kv := NewFileKV(path)

	got, err := kv.SetIfAbsent(KeyVoterID, "first")
	if err != nil || got != "first" {
		t.Fatalf("Expected first, got %q err=%v", got, err)
	}
	got, err = NewFileKV(path).SetIfAbsent(KeyVoterID, "second")
	if err != nil || got != "first" {
		t.Errorf("Expected existing value first, got %q err=%v", got, err)
	}

	t.Run("stale lock is broken", func(t *testing.T) {
		lockPath := path + ".lock"
		if err := os.WriteFile(lockPath, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		old := time.Now().Add(-time.Hour)
		if err := os.Chtimes(lockPath, old, old); err != nil {
			t.Fatal(err)
		}

		if err := kv.Set(KeyAdminToken, "tok"); err != nil {
			t.Fatalf("Set with stale lock failed: %v", err)
		}
	})
}

func TestMemoryKV_SetIfAbsent(t *testing.T) {
	kv := NewMemoryKV()
	for i := 0; i < 3; i++ {
		got, _ := kv.SetIfAbsent(KeyVoterID, fmt.Sprintf("v%d", i))
		if got != "v0" {
			t.Errorf("Expected v0, got %q", got)
		}
	}
}
