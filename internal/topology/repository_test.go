package topology

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the topology tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	// Create tables matching the schema
	schema := `
		CREATE TABLE topology_upgrades (
			space      TEXT    NOT NULL,
			shard_id   INTEGER NOT NULL,
			version    INTEGER NOT NULL,
			name       TEXT    NOT NULL,
			run_id     TEXT    NOT NULL,
			applied_at TEXT    NOT NULL,
			PRIMARY KEY (space, shard_id, version)
		) STRICT;
		CREATE TABLE topology_entries (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			space      TEXT    NOT NULL,
			shard_id   INTEGER NOT NULL,
			alias      TEXT    NOT NULL,
			kind       TEXT    NOT NULL,
			attrs      TEXT    NOT NULL DEFAULT '{}',
			version    INTEGER NOT NULL,
			created_at TEXT    NOT NULL,
			UNIQUE (space, shard_id, alias)
		) STRICT;
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteRepository_CommitStep(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	applied := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	rec := UpgradeRecord{Space: "example.org", ShardID: 8, Version: 0, Name: "add-streamer", RunID: "run-1", AppliedAt: applied}
	entries := []Entry{
		{Alias: "dvbstreamer", Kind: "dvblast", Attrs: Attributes{"name": "DVBlast"}},
		{Alias: "pool", Kind: "mcast", Attrs: Attributes{}},
	}
	if err := repo.CommitStep(ctx, rec, entries); err != nil {
		t.Fatalf("CommitStep() error = %v", err)
	}

	gotEntries, err := repo.ListEntries(ctx, "example.org", 8)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if diff := cmp.Diff(entries, gotEntries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	versions, err := repo.AppliedVersions(ctx, "example.org", 8)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if diff := cmp.Diff([]int{0}, versions.Sorted()); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}

	upgrades, err := repo.ListUpgrades(ctx, "example.org", 8)
	if err != nil {
		t.Fatalf("ListUpgrades() error = %v", err)
	}
	if diff := cmp.Diff([]UpgradeRecord{rec}, upgrades); diff != "" {
		t.Errorf("upgrades mismatch (-want +got):\n%s", diff)
	}

	other, err := repo.ListEntries(ctx, "example.org", 9)
	if err != nil {
		t.Fatalf("ListEntries(other shard) error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("ListEntries(other shard) = %v, want none", other)
	}
}

func TestSQLiteRepository_CommitStepIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	first := UpgradeRecord{Space: "example.org", ShardID: 8, Version: 0, Name: "first", RunID: "run-1"}
	if err := repo.CommitStep(ctx, first, []Entry{{Alias: "dvbstreamer", Kind: "dvblast", Attrs: Attributes{}}}); err != nil {
		t.Fatalf("CommitStep() error = %v", err)
	}

	// The second step adds a new entry, then collides on an existing alias.
	second := UpgradeRecord{Space: "example.org", ShardID: 8, Version: 1, Name: "second", RunID: "run-2"}
	err := repo.CommitStep(ctx, second, []Entry{
		{Alias: "fresh", Kind: "dvblast", Attrs: Attributes{}},
		{Alias: "dvbstreamer", Kind: "dvblast", Attrs: Attributes{}},
	})
	if !errors.Is(err, ErrDuplicateEntryAlias) {
		t.Fatalf("CommitStep() error = %v, want ErrDuplicateEntryAlias", err)
	}

	entries, err := repo.ListEntries(ctx, "example.org", 8)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1 (failed step rolled back)", len(entries))
	}
	versions, err := repo.AppliedVersions(ctx, "example.org", 8)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if versions.Has(1) {
		t.Error("failed step recorded as applied")
	}

	if err := repo.CommitStep(ctx, first, nil); err == nil {
		t.Error("re-recording an applied version succeeded")
	}
}

func TestRegistry_PersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	var calls int
	catalogue := NewCatalogue()
	catalogue.MustRegister(NewStep("pool", func(_ context.Context, tx *Tx) error {
		calls++
		_, err := tx.AddEntry("mediaControl", "mcast", map[string]any{"name": "mcastPool"})
		return err
	}))

	cfg := exampleShard()
	cfg.Upgrades = append(cfg.Upgrades, UpgradeConfig{Step: "pool"})

	first := NewRegistry(catalogue)
	first.SetRepository(NewSQLiteRepository(db))
	shard := loadExample(t, first, cfg)
	if _, err := first.ApplyUpgrades(ctx, shard, nil); err != nil {
		t.Fatalf("ApplyUpgrades() error = %v", err)
	}

	// A restarted node restores state and has nothing left to apply.
	second := NewRegistry(catalogue)
	second.SetRepository(NewSQLiteRepository(db))
	restored := loadExample(t, second, cfg)
	if err := second.RestoreShard(ctx, restored); err != nil {
		t.Fatalf("RestoreShard() error = %v", err)
	}
	result, err := second.ApplyUpgrades(ctx, restored, nil)
	if err != nil {
		t.Fatalf("ApplyUpgrades() after restore error = %v", err)
	}
	if len(result.Newly) != 0 || calls != 1 {
		t.Errorf("Newly = %v calls = %d, want no steps re-applied", result.Newly, calls)
	}

	if diff := cmp.Diff(first.Snapshot(), second.Snapshot()); diff != "" {
		t.Errorf("restored snapshot differs (-before +after):\n%s", diff)
	}
}

// failingRepository rejects every commit.
type failingRepository struct {
	SQLiteRepository
	err error
}

func (f *failingRepository) CommitStep(context.Context, UpgradeRecord, []Entry) error {
	return f.err
}

func TestRegistry_PersistFailureDiscardsStep(t *testing.T) {
	cause := errors.New("disk full")
	reg := NewRegistry(nil)
	reg.SetRepository(&failingRepository{SQLiteRepository: *NewSQLiteRepository(setupTestDB(t)), err: cause})
	shard := loadExample(t, reg, exampleShard())

	_, err := reg.ApplyUpgrades(context.Background(), shard, nil)
	if !errors.Is(err, cause) || !errors.Is(err, ErrUpgrade) {
		t.Fatalf("ApplyUpgrades() error = %v, want ErrUpgrade wrapping cause", err)
	}
	if _, err := reg.GetEntry(shard, "dvbstreamer"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("GetEntry() error = %v, want ErrEntryNotFound", err)
	}
}

func TestRegistry_RestoreWithoutRepository(t *testing.T) {
	reg := NewRegistry(nil)
	shard := loadExample(t, reg, exampleShard())
	if err := reg.RestoreShard(context.Background(), shard); err != nil {
		t.Errorf("RestoreShard() error = %v", err)
	}
}

func TestRegistry_RestoreKeepsAttributeTypes(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	doc, err := ParseYAML([]byte(`
space:
  name: example.org
  home: dvb
shards:
  - id: 8
    alias: dvb
    schema: "1.0"
    home: dvb
    upgrades:
      - name: add-streamer
        entries:
          - alias: dvbstreamer
            kind: dvblast
            attrs:
              name: DVBlast
              port: 1234
              gain: 0.5
              pids: [100, 101]
              mcast: {id: mcastPool, alias: mediaControl}
`))
	if err != nil {
		t.Fatalf("ParseYAML() error = %v", err)
	}
	load := func(reg *Registry) *Shard {
		t.Helper()
		space, err := reg.LoadSpace(doc.Space)
		if err != nil {
			t.Fatalf("LoadSpace() error = %v", err)
		}
		shard, err := reg.LoadShard(space, doc.Shards[0])
		if err != nil {
			t.Fatalf("LoadShard() error = %v", err)
		}
		return shard
	}

	first := NewRegistry(nil)
	first.SetRepository(NewSQLiteRepository(db))
	shard := load(first)
	if _, err := first.ApplyUpgrades(ctx, shard, nil); err != nil {
		t.Fatalf("ApplyUpgrades() error = %v", err)
	}

	second := NewRegistry(nil)
	second.SetRepository(NewSQLiteRepository(db))
	restored := load(second)
	if err := second.RestoreShard(ctx, restored); err != nil {
		t.Fatalf("RestoreShard() error = %v", err)
	}

	if diff := cmp.Diff(first.Snapshot(), second.Snapshot()); diff != "" {
		t.Errorf("restored snapshot differs (-before +after):\n%s", diff)
	}

	e, err := second.GetEntry(restored, "dvbstreamer")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if port, ok := e.Attrs["port"].(int); !ok || port != 1234 {
		t.Errorf("port = %#v, want int(1234)", e.Attrs["port"])
	}
}
