package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func runDatabaseSuite(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := db.Put([]byte("acct/alice"), []byte("100")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("acct/alice"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "100" {
		t.Fatalf("value: %q", value)
	}

	if err := db.Put([]byte("acct/alice"), []byte("60")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, err = db.Get([]byte("acct/alice"))
	if err != nil || string(value) != "60" {
		t.Fatalf("overwritten value: %q err %v", value, err)
	}

	if err := db.Delete([]byte("acct/alice")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("acct/alice")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// deleting a missing key is a no-op
	if err := db.Delete([]byte("acct/alice")); err != nil {
		t.Fatalf("re-delete: %v", err)
	}
}

func runPrefixSuite(t *testing.T, db Database) {
	t.Helper()
	entries := map[string]string{
		"nft/key/type/1":     "bronze",
		"nft/key/type/2":     "silver",
		"nft/lootbox/type/1": "common",
		"acct/alice":         "100",
	}
	for key, value := range entries {
		if err := db.Put([]byte(key), []byte(value)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	var keys []string
	err := db.IteratePrefix([]byte("nft/key/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("prefix matches: %v", keys)
	}
	for i := 0; i+1 < len(keys); i++ {
		if keys[i] >= keys[i+1] {
			t.Fatalf("iteration not ordered: %v", keys)
		}
	}

	// a callback error stops the walk and propagates
	boom := errors.New("stop")
	calls := 0
	err = db.IteratePrefix([]byte("nft/"), func(key, value []byte) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("walk continued after error: %d calls", calls)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	runDatabaseSuite(t, db)
	runPrefixSuite(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	runDatabaseSuite(t, db)
	runPrefixSuite(t, db)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put([]byte("ref/levels"), []byte("[80000,40000]")); err != nil {
		t.Fatalf("put: %v", err)
	}
	db.Close()

	reopened, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	value, err := reopened.Get([]byte("ref/levels"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "[80000,40000]" {
		t.Fatalf("value: %q", value)
	}
}
