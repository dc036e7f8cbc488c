package mysql

import "testing"

func TestLoadMigrationFiles(t *testing.T) {
	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migration files: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("expected at least one embedded migration")
	}
	for i := 1; i < len(files); i++ {
		if files[i-1].version > files[i].version {
			t.Fatalf("migrations out of order: %s before %s", files[i-1].name, files[i].name)
		}
	}
	if files[0].version != "0001" {
		t.Fatalf("unexpected first version %q", files[0].version)
	}
	if len(files[0].statements) == 0 {
		t.Fatalf("first migration has no statements")
	}
}

func TestSplitSQLStatements(t *testing.T) {
	statements := splitSQLStatements("CREATE TABLE a (id INT);\n\nCREATE TABLE b (id INT);\n")
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(statements))
	}
}

func TestParseMigrationVersion(t *testing.T) {
	cases := map[string]string{
		"0001_init.sql": "0001",
		"0002.sql":      "0002",
		"raw":           "raw",
	}
	for name, want := range cases {
		if got := parseMigrationVersion(name); got != want {
			t.Fatalf("parse %q: got %q want %q", name, got, want)
		}
	}
}
