package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("db:migrations_test - failed to write test file %s: %v", name, err)
		}
	}
}

func TestLoadMigrations_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"0002_index.sql": "CREATE INDEX i ON t(a);",
		"0001_table.sql": "CREATE TABLE t (a TEXT);",
		"README.md":      "# Migrations",
	})
	if err := os.Mkdir(filepath.Join(dir, "nested.sql"), 0755); err != nil {
		t.Fatalf("db:migrations_test - failed to create subdir: %v", err)
	}

	result, err := LoadMigrations(dir)
	if err != nil {
		t.Fatalf("db:migrations_test - unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("db:migrations_test - expected 2 migrations, got %d", len(result))
	}
	if result[0].Name != "0001_table.sql" || result[0].SQL != "CREATE TABLE t (a TEXT);" {
		t.Errorf("db:migrations_test - first migration = %+v", result[0])
	}
	if result[1].Name != "0002_index.sql" {
		t.Errorf("db:migrations_test - second migration = %+v", result[1])
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	result, err := LoadMigrations(t.TempDir())
	if err != nil {
		t.Fatalf("db:migrations_test - unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("db:migrations_test - expected empty result, got %d items", len(result))
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	if _, err := LoadMigrations(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Error("db:migrations_test - expected error for non-existent directory")
	}
}

func TestLoadMigrations_RepositoryMigrations(t *testing.T) {
	result, err := LoadMigrations(ResolveMigrationPath("migrations"))
	if err != nil {
		t.Fatalf("db:migrations_test - failed to load repository migrations: %v", err)
	}
	if len(result) == 0 || result[0].Name != "0001_bridge_storage.sql" {
		t.Errorf("db:migrations_test - unexpected repository migrations: %+v", result)
	}
}
