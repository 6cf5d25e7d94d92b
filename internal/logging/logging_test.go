package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDailyFileRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "app-2026-01-01.log")
	if err := os.WriteFile(stale, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("seed stale log: %v", err)
	}

	now := time.Date(2026, 3, 10, 23, 59, 0, 0, time.Local)
	file, err := OpenDailyFile(dir, 3, func() time.Time { return now })
	if err != nil {
		t.Fatalf("open daily file: %v", err)
	}
	defer file.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale log to be pruned, stat err=%v", err)
	}

	if _, err := file.Write([]byte("first\n")); err != nil {
		t.Fatalf("write first: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := file.Write([]byte("second\n")); err != nil {
		t.Fatalf("write second: %v", err)
	}

	first, err := os.ReadFile(filepath.Join(dir, "app-2026-03-10.log"))
	if err != nil || string(first) != "first\n" {
		t.Fatalf("unexpected first day content %q err=%v", first, err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "app-2026-03-11.log"))
	if err != nil || string(second) != "second\n" {
		t.Fatalf("unexpected second day content %q err=%v", second, err)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
