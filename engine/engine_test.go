package engine

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestOpenInMemory verifies that we can open an in-memory SQLite database
// using the modernc.org/sqlite driver and execute a trivial statement.
func TestOpenInMemory(t *testing.T) {
	db, err := OpenFile(Memory, DefaultFileOptions())
	if err != nil {
		t.Fatalf("OpenFile(:memory:) failed: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE t(x INTEGER)"); err != nil {
		t.Fatalf("CREATE TABLE failed: %v", err)
	}
	if _, err := db.Exec("INSERT INTO t(x) VALUES (1),(2),(3)"); err != nil {
		t.Fatalf("INSERT failed: %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("COUNT failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows on the single connection, got %d", n)
	}
}

// TestOpenFilePragmas verifies that file databases run in WAL mode.
func TestOpenFilePragmas(t *testing.T) {
	db, err := OpenFile(filepath.Join(t.TempDir(), "test.sqlite"), DefaultFileOptions())
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("expected wal journal mode, got %q", mode)
	}
}

// TestDSN verifies pragma rendering.
func TestDSN(t *testing.T) {
	dsn := FileOptions{BusyTimeout: 2 * time.Second, WAL: true}.DSN("a.sqlite")
	if !strings.Contains(dsn, "busy_timeout%282000%29") || !strings.Contains(dsn, "journal_mode%28WAL%29") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
	if got := (FileOptions{}).DSN("a.sqlite"); got != "a.sqlite" {
		t.Fatalf("expected bare path, got %s", got)
	}
}
