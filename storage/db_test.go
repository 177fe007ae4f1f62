package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func runDatabaseSuite(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("a/1"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put([]byte("a/2"), []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put([]byte("b/1"), []byte("other")); err != nil {
		t.Fatalf("put: %v", err)
	}

	value, err := db.Get([]byte("a/1"))
	if err != nil || string(value) != "one" {
		t.Fatalf("get: %q %v", value, err)
	}
	ok, err := db.Has([]byte("a/2"))
	if err != nil || !ok {
		t.Fatalf("has: %v %v", ok, err)
	}

	var seen []string
	err = db.Iterate([]byte("a/"), func(key, value []byte) bool {
		seen = append(seen, fmt.Sprintf("%s=%s", key, value))
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 2 || seen[0] != "a/1=one" || seen[1] != "a/2=two" {
		t.Fatalf("iteration order: %v", seen)
	}

	// Early stop.
	count := 0
	if err := db.Iterate([]byte("a/"), func(key, value []byte) bool {
		count++
		return false
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if count != 1 {
		t.Fatalf("early stop visited %d keys", count)
	}

	if err := db.Delete([]byte("a/1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("a/1")); ok {
		t.Fatal("deleted key still present")
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	runDatabaseSuite(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "leveldb"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	runDatabaseSuite(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "state.bolt"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	runDatabaseSuite(t, db)
}
