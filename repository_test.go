package codebench_test

import (
	"context"
	"errors"
	"testing"

	"github.com/codebench/codebench"
	"github.com/codebench/codebench/store/memstore"
	"github.com/codebench/codebench/store/sqlite"
)

// adapters returns a fresh instance of every embeddable backend so the
// repository contract is exercised identically against each.
func adapters(t *testing.T) map[string]codebench.Adapter {
	t.Helper()
	mem, err := sqlite.NewInMemory(nil)
	if err != nil {
		t.Fatalf("NewInMemory() error = %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	return map[string]codebench.Adapter{
		"memstore": memstore.New(),
		"sqlite":   mem,
	}
}

func newRepo(t *testing.T, adapter codebench.Adapter) *codebench.Repository {
	t.Helper()
	repo := codebench.NewRepository(adapter)
	if err := repo.InitializeTables(context.Background()); err != nil {
		t.Fatalf("InitializeTables() error = %v", err)
	}
	return repo
}

func strptr(s string) *string { return &s }

func TestRepositoryRequiresInit(t *testing.T) {
	repo := codebench.NewRepository(memstore.New())
	_, err := repo.SaveCodeSession(context.Background(), codebench.CodeSession{
		Code: "print(1)", Language: codebench.LangPython, Timestamp: codebench.NowISO(),
	})
	if !errors.Is(err, codebench.ErrNotInitialized) {
		t.Errorf("SaveCodeSession before init error = %v, want ErrNotInitialized", err)
	}
	if _, err := repo.GetLatestCodeSession(context.Background(), codebench.LangPython); !errors.Is(err, codebench.ErrNotInitialized) {
		t.Errorf("GetLatestCodeSession before init error = %v, want ErrNotInitialized", err)
	}
}

func TestRepositoryInitIdempotent(t *testing.T) {
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			repo := codebench.NewRepository(adapter)
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				if err := repo.InitializeTables(ctx); err != nil {
					t.Fatalf("InitializeTables() call %d error = %v", i+1, err)
				}
			}
		})
	}
}

func TestRepositorySessionRoundtrip(t *testing.T) {
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t, adapter)
			ctx := context.Background()

			id, err := repo.SaveCodeSession(ctx, codebench.CodeSession{
				Code:      "print('old')",
				Language:  codebench.LangPython,
				Timestamp: "2026-01-01T00:00:00Z",
			})
			if err != nil {
				t.Fatalf("SaveCodeSession() error = %v", err)
			}
			if id != 1 {
				t.Errorf("first insert id = %d, want 1", id)
			}

			id2, err := repo.SaveCodeSession(ctx, codebench.CodeSession{
				Code:      "print('new')",
				Language:  codebench.LangPython,
				Output:    strptr("new\n"),
				Timestamp: "2026-01-02T00:00:00Z",
			})
			if err != nil {
				t.Fatalf("SaveCodeSession() error = %v", err)
			}
			if id2 <= id {
				t.Errorf("second insert id = %d, want > %d", id2, id)
			}

			latest, err := repo.GetLatestCodeSession(ctx, codebench.LangPython)
			if err != nil {
				t.Fatalf("GetLatestCodeSession() error = %v", err)
			}
			if latest == nil {
				t.Fatal("GetLatestCodeSession() = nil, want row")
			}
			if latest.Code != "print('new')" {
				t.Errorf("latest code = %q, want the newer session", latest.Code)
			}
			if latest.Output == nil || *latest.Output != "new\n" {
				t.Errorf("latest output = %v, want new\\n", latest.Output)
			}

			// Other languages see nothing.
			other, err := repo.GetLatestCodeSession(ctx, codebench.LangJavaScript)
			if err != nil {
				t.Fatalf("GetLatestCodeSession(js) error = %v", err)
			}
			if other != nil {
				t.Errorf("GetLatestCodeSession(js) = %+v, want nil", other)
			}
		})
	}
}

func TestRepositoryEveryInsertIsANewRow(t *testing.T) {
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t, adapter)
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				if _, err := repo.SaveCodeSession(ctx, codebench.CodeSession{
					Code: "x = 1", Language: codebench.LangPython, Timestamp: codebench.NowISO(),
				}); err != nil {
					t.Fatalf("SaveCodeSession() error = %v", err)
				}
			}
			all, err := repo.GetAllCodeSessions(ctx, codebench.LangPython)
			if err != nil {
				t.Fatalf("GetAllCodeSessions() error = %v", err)
			}
			if len(all) != 3 {
				t.Errorf("len(sessions) = %d, want 3 (append-only history)", len(all))
			}
		})
	}
}

func TestRepositoryGetAllNewestFirst(t *testing.T) {
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t, adapter)
			ctx := context.Background()
			timestamps := []string{"2026-01-01T00:00:00Z", "2026-01-03T00:00:00Z", "2026-01-02T00:00:00Z"}
			for _, ts := range timestamps {
				if _, err := repo.SaveCodeSession(ctx, codebench.CodeSession{
					Code: "x", Language: codebench.LangJavaScript, Timestamp: ts,
				}); err != nil {
					t.Fatalf("SaveCodeSession() error = %v", err)
				}
			}
			all, err := repo.GetAllCodeSessions(ctx, codebench.LangJavaScript)
			if err != nil {
				t.Fatalf("GetAllCodeSessions() error = %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("len(sessions) = %d, want 3", len(all))
			}
			for i := 1; i < len(all); i++ {
				if all[i-1].Timestamp < all[i].Timestamp {
					t.Errorf("sessions not newest-first: %s before %s", all[i-1].Timestamp, all[i].Timestamp)
				}
			}
		})
	}
}

func TestRepositoryRejectsInvalidLanguage(t *testing.T) {
	repo := newRepo(t, memstore.New())
	_, err := repo.SaveCodeSession(context.Background(), codebench.CodeSession{
		Code: "x", Language: "ruby", Timestamp: codebench.NowISO(),
	})
	if err == nil {
		t.Error("SaveCodeSession(ruby) error = nil, want invalid language error")
	}
}

func TestRepositoryPartialUpdate(t *testing.T) {
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t, adapter)
			ctx := context.Background()
			id, err := repo.SaveCodeSession(ctx, codebench.CodeSession{
				Code: "a", Language: codebench.LangPython, Timestamp: "2026-01-01T00:00:00Z",
			})
			if err != nil {
				t.Fatalf("SaveCodeSession() error = %v", err)
			}

			if err := repo.UpdateCodeSession(ctx, id, codebench.SessionUpdate{
				Output: strptr("done\n"),
			}); err != nil {
				t.Fatalf("UpdateCodeSession() error = %v", err)
			}

			latest, err := repo.GetLatestCodeSession(ctx, codebench.LangPython)
			if err != nil {
				t.Fatalf("GetLatestCodeSession() error = %v", err)
			}
			if latest.Code != "a" {
				t.Errorf("code = %q, want untouched %q", latest.Code, "a")
			}
			if latest.Output == nil || *latest.Output != "done\n" {
				t.Errorf("output = %v, want done\\n", latest.Output)
			}

			// Empty update is a no-op, not an error.
			if err := repo.UpdateCodeSession(ctx, id, codebench.SessionUpdate{}); err != nil {
				t.Errorf("empty UpdateCodeSession() error = %v, want nil", err)
			}
		})
	}
}

func TestRepositoryDeleteSession(t *testing.T) {
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t, adapter)
			ctx := context.Background()
			id, err := repo.SaveCodeSession(ctx, codebench.CodeSession{
				Code: "x", Language: codebench.LangHTML, Timestamp: codebench.NowISO(),
			})
			if err != nil {
				t.Fatalf("SaveCodeSession() error = %v", err)
			}
			if err := repo.DeleteCodeSession(ctx, id); err != nil {
				t.Fatalf("DeleteCodeSession() error = %v", err)
			}
			latest, err := repo.GetLatestCodeSession(ctx, codebench.LangHTML)
			if err != nil {
				t.Fatalf("GetLatestCodeSession() error = %v", err)
			}
			if latest != nil {
				t.Errorf("session still present after delete: %+v", latest)
			}
		})
	}
}

func TestRepositoryAppData(t *testing.T) {
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t, adapter)
			ctx := context.Background()

			// Absent key reads as empty, not as an error.
			v, err := repo.GetAppData(ctx, "theme")
			if err != nil {
				t.Fatalf("GetAppData(absent) error = %v", err)
			}
			if v != "" {
				t.Errorf("GetAppData(absent) = %q, want empty", v)
			}

			if err := repo.SetAppData(ctx, "theme", "dark"); err != nil {
				t.Fatalf("SetAppData() error = %v", err)
			}
			// Upsert replaces in place; the table stays one row per key.
			if err := repo.SetAppData(ctx, "theme", "light"); err != nil {
				t.Fatalf("SetAppData() error = %v", err)
			}
			if err := repo.SetAppData(ctx, "font", "mono"); err != nil {
				t.Fatalf("SetAppData() error = %v", err)
			}

			v, err = repo.GetAppData(ctx, "theme")
			if err != nil {
				t.Fatalf("GetAppData() error = %v", err)
			}
			if v != "light" {
				t.Errorf("GetAppData(theme) = %q, want light", v)
			}

			all, err := repo.GetAllAppData(ctx)
			if err != nil {
				t.Fatalf("GetAllAppData() error = %v", err)
			}
			if len(all) != 2 {
				t.Errorf("len(app data) = %d, want 2", len(all))
			}

			if err := repo.DeleteAppData(ctx, "theme"); err != nil {
				t.Fatalf("DeleteAppData() error = %v", err)
			}
			v, err = repo.GetAppData(ctx, "theme")
			if err != nil {
				t.Fatalf("GetAppData(deleted) error = %v", err)
			}
			if v != "" {
				t.Errorf("GetAppData(deleted) = %q, want empty", v)
			}
		})
	}
}
