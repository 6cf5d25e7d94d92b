package migrations

import (
	"testing"
	"testing/fstest"
)

func TestListMigrationsOrdersByNumericVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"V10__likes.sql":    {Data: []byte("SELECT 1;")},
		"V2__files.sql":     {Data: []byte("SELECT 1;")},
		"V1__init.sql":      {Data: []byte("SELECT 1;")},
		"seed_dev_data.sql": {Data: []byte("SELECT 1;")},
		"README.md":         {Data: []byte("ignored")},
		"archive/V0__x.sql": {Data: []byte("ignored")},
	}

	migs, err := listMigrations(fsys)
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}

	want := []string{"V1__init.sql", "V2__files.sql", "V10__likes.sql", "seed_dev_data.sql"}
	if len(migs) != len(want) {
		t.Fatalf("unexpected migration count: got %d want %d", len(migs), len(want))
	}
	for i, name := range want {
		if migs[i].Name != name {
			t.Fatalf("unexpected order at %d: got %s want %s", i, migs[i].Name, name)
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "V1__init.sql", want: "1"},
		{name: "V12__add_likes.sql", want: "12"},
		{name: "V3.sql", want: ""},
		{name: "init.sql", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseVersion(tt.name); got != tt.want {
				t.Fatalf("unexpected version for %s: got %q want %q", tt.name, got, tt.want)
			}
		})
	}
}
