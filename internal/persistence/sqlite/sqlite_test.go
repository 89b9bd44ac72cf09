// SPDX-License-Identifier: MIT

package sqlite

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAppliesSchemaAndSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.sqlite")

	db, err := Open(dbPath, DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, v TEXT);"); err != nil {
		t.Fatalf("ddl: %v", err)
	}
	if _, err := db.Exec("INSERT INTO t (v) VALUES ('a');"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	// Reopen: IF NOT EXISTS semantics make first start and restart identical.
	db2, err := Open(dbPath, DefaultConfig())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	if _, err := db2.Exec("CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, v TEXT);"); err != nil {
		t.Fatalf("ddl on reopen: %v", err)
	}
	var n int
	if err := db2.QueryRow("SELECT COUNT(*) FROM t;").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("row count after reopen = %d", n)
	}
}

func TestExportReplica(t *testing.T) {
	dir := t.TempDir()
	livePath := filepath.Join(dir, "live.sqlite")
	replicaPath := filepath.Join(dir, "live-ReadReplica.sqlite")

	db, err := Open(livePath, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO t (v) VALUES ('x'), ('y');"); err != nil {
		t.Fatal(err)
	}

	if err := ExportReplica(db, replicaPath); err != nil {
		t.Fatalf("export: %v", err)
	}

	ro, err := OpenReadOnly(replicaPath)
	if err != nil {
		t.Fatalf("open replica: %v", err)
	}
	defer ro.Close()
	var n int
	if err := ro.QueryRow("SELECT COUNT(*) FROM t;").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("replica row count = %d", n)
	}

	// Replica connections must refuse writes.
	if _, err := ro.Exec("INSERT INTO t (v) VALUES ('z');"); err == nil {
		t.Fatal("read-only replica accepted a write")
	}

	// A second export replaces the snapshot in place.
	if _, err := db.Exec("INSERT INTO t (v) VALUES ('z');"); err != nil {
		t.Fatal(err)
	}
	if err := ExportReplica(db, replicaPath); err != nil {
		t.Fatalf("re-export: %v", err)
	}
	ro2, err := OpenReadOnly(replicaPath)
	if err != nil {
		t.Fatal(err)
	}
	defer ro2.Close()
	if err := ro2.QueryRow("SELECT COUNT(*) FROM t;").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("refreshed replica row count = %d", n)
	}
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	if _, err := OpenReadOnly(filepath.Join(t.TempDir(), "absent.sqlite")); err == nil {
		t.Fatal("expected error for missing replica")
	}
}

func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corruptible.sqlite")

	db, err := Open(dbPath, DefaultConfig())
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, data TEXT);"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for i := 0; i < 100; i++ {
		if _, err := db.Exec("INSERT INTO test (data) VALUES (?);", string(make([]byte, 100))); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	db.Close()

	issues, err := VerifyIntegrity(dbPath, "quick")
	if err != nil {
		t.Fatalf("verification system error: %v", err)
	}
	if issues != nil {
		t.Fatalf("fresh database reported issues: %v", issues)
	}

	// Overwrite bytes in the second page to simulate corruption.
	f, err := os.OpenFile(dbPath, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	corrupt := make([]byte, 100)
	if _, err := rand.Read(corrupt); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt(corrupt, 4096); err != nil {
		t.Fatal(err)
	}
	f.Close()

	issues, err = VerifyIntegrity(dbPath, "full")
	if err != nil {
		t.Fatalf("verification system error on corrupt file: %v", err)
	}
	if issues == nil {
		t.Fatal("corruption not detected")
	}
}
