package archive_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"plistdl/internal/archive"
	"plistdl/internal/consts"
	"plistdl/internal/errs"
)

func writeArchive(t *testing.T, dir string, lines string) {
	t.Helper()

	path := filepath.Join(dir, consts.ArchiveFilename)
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

func TestPath(t *testing.T) {
	t.Parallel()

	ledger := archive.New("/data/downloads")

	want := filepath.Join("/data/downloads", consts.ArchiveFilename)
	if got := ledger.Path(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "typical archive",
			content: "youtube dQw4w9WgXcQ\nyoutube abc123\n",
			want:    []string{"youtube dQw4w9WgXcQ", "youtube abc123"},
		},
		{
			name:    "blank lines skipped",
			content: "youtube one\n\n  \nyoutube two\n",
			want:    []string{"youtube one", "youtube two"},
		},
		{
			name:    "empty file",
			content: "",
			want:    nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeArchive(t, dir, tc.content)

			got, err := archive.New(dir).Entries()
			if err != nil {
				t.Fatalf("Entries() failed: %v", err)
			}

			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEntriesMissingFile(t *testing.T) {
	t.Parallel()

	ledger := archive.New(t.TempDir())

	entries, err := ledger.Entries()
	if err != nil {
		t.Fatalf("Entries() on missing file failed: %v", err)
	}

	if entries != nil {
		t.Errorf("expected nil entries, got %v", entries)
	}

	count, err := ledger.Count()
	if err != nil || count != 0 {
		t.Errorf("Count() = %d, %v; want 0, nil", count, err)
	}
}

func TestContains(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArchive(t, dir, "youtube dQw4w9WgXcQ\nbare-id\n")

	ledger := archive.New(dir)

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "whole line", id: "youtube dQw4w9WgXcQ", want: true},
		{name: "last field only", id: "dQw4w9WgXcQ", want: true},
		{name: "bare entry", id: "bare-id", want: true},
		{name: "absent", id: "nope", want: false},
		{name: "extractor prefix alone", id: "youtube", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ledger.Contains(tc.id)
			if err != nil {
				t.Fatalf("Contains(%q) failed: %v", tc.id, err)
			}

			if got != tc.want {
				t.Errorf("Contains(%q) = %v, want %v", tc.id, got, tc.want)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArchive(t, dir, "youtube one\nyoutube two\nyoutube three\n")

	ledger := archive.New(dir)

	if err := ledger.Remove("two"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	got, err := ledger.Entries()
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}

	want := []string{"youtube one", "youtube three"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRemoveNotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArchive(t, dir, "youtube one\n")

	err := archive.New(dir).Remove("missing")
	if !errors.Is(err, errs.ErrArchiveEntryNotFound) {
		t.Errorf("expected ErrArchiveEntryNotFound, got: %v", err)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArchive(t, dir, "youtube one\n")

	ledger := archive.New(dir)

	if err := ledger.Clear(); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	if _, err := os.Stat(ledger.Path()); !os.IsNotExist(err) {
		t.Errorf("archive file still present after Clear()")
	}

	// clearing again is a no-op
	if err := ledger.Clear(); err != nil {
		t.Errorf("Clear() on missing file failed: %v", err)
	}
}
