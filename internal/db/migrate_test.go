package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_CreatesSchemaVersionTable(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))

	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "schema_version", name)
}

func TestMigrate_InitializesVersionToZero(t *testing.T) {
	withMigrations(t)
	db := openTestDB(t)
	require.NoError(t, Migrate(db))
	assert.Equal(t, 0, schemaVersion(t, db))
}

func withMigrations(t *testing.T, stmts ...string) {
	t.Helper()
	orig := All
	t.Cleanup(func() { All = orig })
	All = stmts
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
	return n == 1
}

func schemaVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var version int
	require.NoError(t, db.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	return version
}

func TestMigrate_AppliesPendingOnce(t *testing.T) {
	tests := []struct {
		name    string
		stmts   []string
		runs    int
		version int
		tables  []string
	}{
		{
			name:    "two pending",
			stmts:   []string{`CREATE TABLE runs_a (id INTEGER PRIMARY KEY)`, `CREATE TABLE runs_b (id INTEGER PRIMARY KEY)`},
			runs:    1,
			version: 2,
			tables:  []string{"runs_a", "runs_b"},
		},
		{
			name:    "rerun is a no-op",
			stmts:   []string{`CREATE TABLE runs_c (id INTEGER PRIMARY KEY)`},
			runs:    2,
			version: 1,
			tables:  []string{"runs_c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withMigrations(t, tt.stmts...)
			db := openTestDB(t)
			for i := 0; i < tt.runs; i++ {
				require.NoError(t, Migrate(db))
			}
			assert.Equal(t, tt.version, schemaVersion(t, db))
			for _, table := range tt.tables {
				assert.True(t, tableExists(t, db, table), table)
			}
		})
	}
}

func TestMigrate_CreatesReportingTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"launches", "items", "item_attributes", "item_parameters", "logs"} {
		assert.True(t, tableExists(t, db, table), table)
	}
	assert.Equal(t, len(All), schemaVersion(t, db))
}

func TestMigrate_StopsAtFailingMigration(t *testing.T) {
	withMigrations(t,
		`CREATE TABLE launches_ok (id TEXT PRIMARY KEY)`,
		`CREATE TABLE broken (`,
	)
	db := openTestDB(t)
	require.Error(t, Migrate(db))
	assert.Equal(t, 1, schemaVersion(t, db))
	assert.True(t, tableExists(t, db, "launches_ok"))
}
