package sqlstore

import (
	"strings"
	"testing"

	"github.com/viant/watchdb/engine"
)

func TestTouchTriggers(t *testing.T) {
	trigs := TouchTriggers("user-events")
	if len(trigs) != 3 {
		t.Fatalf("expected 3 triggers, got %d", len(trigs))
	}
	if !strings.Contains(trigs[0], `CREATE TEMP TRIGGER IF NOT EXISTS _watch_user_events_ai AFTER INSERT ON main."user-events"`) {
		t.Fatalf("unexpected insert trigger: %s", trigs[0])
	}
	if !strings.Contains(trigs[1], `VALUES ('user-events', NEW."_id")`) {
		t.Fatalf("update trigger missing NEW reference: %s", trigs[1])
	}
	if !strings.Contains(trigs[2], `OLD."_id"`) {
		t.Fatalf("delete trigger missing OLD reference: %s", trigs[2])
	}
}

func TestDropTouchTriggers(t *testing.T) {
	drops := DropTouchTriggers("users")
	if len(drops) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(drops))
	}
	if drops[2] != "DROP TRIGGER IF EXISTS temp._watch_users_ad" {
		t.Fatalf("unexpected drop statement: %s", drops[2])
	}
}

func TestTouchTriggersRecordRows(t *testing.T) {
	db, err := engine.Open(engine.Memory)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	stmts := []string{`CREATE TABLE "user-events" ("_id" INTEGER PRIMARY KEY, name TEXT)`, TouchedTableDDL()}
	stmts = append(stmts, TouchTriggers("user-events")...)
	stmts = append(stmts,
		`INSERT INTO "user-events"(name) VALUES ('a')`,
		`UPDATE "user-events" SET name = 'b' WHERE "_id" = 1`,
		`DELETE FROM "user-events" WHERE "_id" = 1`,
	)
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + TouchedTable + ` WHERE collection = 'user-events' AND id = 1`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 touched rows, got %d", count)
	}
	for _, stmt := range DropTouchTriggers("user-events") {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("drop: %v", err)
		}
	}
}
