package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/codebench/codebench"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	if _, err := s.Run(ctx, codebench.OpInitSchema); err != nil {
		t.Fatalf("init schema error = %v", err)
	}
	rows := []struct {
		code, language, timestamp string
	}{
		{"print(1)", "python", "2026-01-01T00:00:00Z"},
		{"console.log(1)", "javascript", "2026-01-02T00:00:00Z"},
		{"print(2)", "python", "2026-01-03T00:00:00Z"},
	}
	for _, r := range rows {
		if _, err := s.Run(ctx, codebench.OpInsertSession, r.code, r.language, nil, r.timestamp); err != nil {
			t.Fatalf("insert error = %v", err)
		}
	}
	return s
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	s := New()
	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		ack, err := s.Run(ctx, codebench.OpInsertSession, "x", "python", nil, "2026-01-01T00:00:00Z")
		if err != nil {
			t.Fatalf("insert error = %v", err)
		}
		if ack.LastInsertID != want {
			t.Errorf("LastInsertID = %d, want %d", ack.LastInsertID, want)
		}
	}
}

func TestInsertRejectsUnknownLanguage(t *testing.T) {
	s := New()
	if _, err := s.Run(context.Background(), codebench.OpInsertSession, "x", "ruby", nil, "t"); err == nil {
		t.Error("insert with unknown language succeeded, want check failure")
	}
}

func TestSelectLatestByTimestampThenID(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	row, err := s.Get(ctx, codebench.OpSelectLatestSession, "python")
	if err != nil {
		t.Fatalf("select latest error = %v", err)
	}
	if row["code"] != "print(2)" {
		t.Errorf("latest python code = %v, want print(2)", row["code"])
	}

	// Equal timestamps: the higher id wins.
	if _, err := s.Run(ctx, codebench.OpInsertSession, "print(3)", "python", nil, "2026-01-03T00:00:00Z"); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	row, err = s.Get(ctx, codebench.OpSelectLatestSession, "python")
	if err != nil {
		t.Fatalf("select latest error = %v", err)
	}
	if row["code"] != "print(3)" {
		t.Errorf("latest on tie = %v, want the higher id", row["code"])
	}

	// Absence is (nil, nil).
	row, err = s.Get(ctx, codebench.OpSelectLatestSession, "html")
	if err != nil || row != nil {
		t.Errorf("select latest html = (%v, %v), want (nil, nil)", row, err)
	}
}

func TestSelectSessionsNewestFirst(t *testing.T) {
	s := seeded(t)
	rows, err := s.All(context.Background(), codebench.OpSelectAllSessions)
	if err != nil {
		t.Fatalf("select all error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0]["code"] != "print(2)" || rows[2]["code"] != "print(1)" {
		t.Errorf("rows out of order: first %v last %v", rows[0]["code"], rows[2]["code"])
	}

	byLang, err := s.All(context.Background(), codebench.OpSelectSessionsByLanguage, "javascript")
	if err != nil {
		t.Fatalf("select by language error = %v", err)
	}
	if len(byLang) != 1 || byLang[0]["language"] != "javascript" {
		t.Errorf("by-language rows = %v", byLang)
	}
}

func TestUpdateAndDeleteSession(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	ack, err := s.Run(ctx, codebench.OpUpdateSession, int64(1), map[string]any{"output": "done\n"})
	if err != nil {
		t.Fatalf("update error = %v", err)
	}
	if ack.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", ack.RowsAffected)
	}
	rows, _ := s.All(ctx, codebench.OpSelectSessionsByLanguage, "python")
	var found bool
	for _, r := range rows {
		if r["id"] == int64(1) {
			found = true
			if r["output"] != "done\n" {
				t.Errorf("output = %v, want done\\n", r["output"])
			}
			if r["code"] != "print(1)" {
				t.Errorf("code = %v, want untouched", r["code"])
			}
		}
	}
	if !found {
		t.Fatal("row 1 missing after update")
	}

	// Updating a missing id affects nothing.
	ack, err = s.Run(ctx, codebench.OpUpdateSession, int64(99), map[string]any{"code": "x"})
	if err != nil || ack.RowsAffected != 0 {
		t.Errorf("update missing id = (%+v, %v), want zero rows, nil error", ack, err)
	}

	if _, err := s.Run(ctx, codebench.OpDeleteSession, int64(1)); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	rows, _ = s.All(ctx, codebench.OpSelectAllSessions)
	if len(rows) != 2 {
		t.Errorf("len(rows) after delete = %d, want 2", len(rows))
	}
}

func TestAppDataOps(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Run(ctx, codebench.OpUpsertAppData, "theme", "dark"); err != nil {
		t.Fatalf("upsert error = %v", err)
	}
	if _, err := s.Run(ctx, codebench.OpUpsertAppData, "theme", "light"); err != nil {
		t.Fatalf("upsert error = %v", err)
	}
	row, err := s.Get(ctx, codebench.OpSelectAppData, "theme")
	if err != nil {
		t.Fatalf("select error = %v", err)
	}
	if row["value"] != "light" {
		t.Errorf("value = %v, want light (replaced)", row["value"])
	}

	all, err := s.All(ctx, codebench.OpSelectAllAppData)
	if err != nil {
		t.Fatalf("select all error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(app data) = %d, want 1 row per key", len(all))
	}

	if _, err := s.Run(ctx, codebench.OpDeleteAppData, "theme"); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	row, err = s.Get(ctx, codebench.OpSelectAppData, "theme")
	if err != nil || row != nil {
		t.Errorf("select deleted = (%v, %v), want (nil, nil)", row, err)
	}
}

func TestUnsupportedOp(t *testing.T) {
	s := New()
	if _, err := s.Run(context.Background(), codebench.Op(99)); !errors.Is(err, codebench.ErrUnsupportedOp) {
		t.Errorf("Run(bogus) error = %v, want ErrUnsupportedOp", err)
	}
	if _, err := s.Get(context.Background(), codebench.OpInsertSession); !errors.Is(err, codebench.ErrUnsupportedOp) {
		t.Errorf("Get(write op) error = %v, want ErrUnsupportedOp", err)
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	if _, err := s.Run(ctx, codebench.OpUpsertAppData, "theme", "dark"); err != nil {
		t.Fatalf("upsert error = %v", err)
	}

	data, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	restored, err := NewFromSnapshot(data)
	if err != nil {
		t.Fatalf("NewFromSnapshot() error = %v", err)
	}
	rows, err := restored.All(ctx, codebench.OpSelectAllSessions)
	if err != nil {
		t.Fatalf("select all error = %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("restored sessions = %d, want 3", len(rows))
	}
	row, err := restored.Get(ctx, codebench.OpSelectAppData, "theme")
	if err != nil || row == nil || row["value"] != "dark" {
		t.Errorf("restored app data = (%v, %v), want dark", row, err)
	}

	// ID sequence continues past restored rows.
	ack, err := restored.Run(ctx, codebench.OpInsertSession, "x", "python", nil, "2026-02-01T00:00:00Z")
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if ack.LastInsertID != 4 {
		t.Errorf("LastInsertID after restore = %d, want 4", ack.LastInsertID)
	}
}

func TestCorruptSnapshotFailsConstruction(t *testing.T) {
	if _, err := NewFromSnapshot([]byte("{broken")); err == nil {
		t.Error("NewFromSnapshot(corrupt) error = nil, want failure")
	}
	// Empty snapshot is a fresh store, not an error.
	s, err := NewFromSnapshot(nil)
	if err != nil || s == nil {
		t.Errorf("NewFromSnapshot(nil) = (%v, %v), want empty store", s, err)
	}
}
