// Package archive provides read access and the delete-to-force-redownload
// contract over the ledger file yt-dlp maintains via --download-archive.
// The file itself is written exclusively by the external tool; this package
// never appends to it.
package archive

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"plistdl/internal/consts"
	"plistdl/internal/errs"
)

const filePerm = 0o644

// Ledger wraps the archive file at a destination root.
type Ledger struct {
	path string
}

// New returns a Ledger for the archive file under the given destination root.
func New(destinationRoot string) *Ledger {
	return &Ledger{path: filepath.Join(destinationRoot, consts.ArchiveFilename)}
}

// Path returns the archive file path, suitable for passing to --download-archive.
func (l *Ledger) Path() string {
	return l.path
}

// Entries returns all recorded identifiers, one per line as the tool wrote
// them. A missing file means no items were recorded yet and yields nil.
func (l *Ledger) Entries() ([]string, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	var entries []string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entries = append(entries, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}

	return entries, nil
}

// Count returns the number of recorded identifiers.
func (l *Ledger) Count() (int, error) {
	entries, err := l.Entries()
	if err != nil {
		return 0, err
	}

	return len(entries), nil
}

// Contains reports whether the identifier is recorded in the ledger.
// It matches either the whole line or its last field, so both
// "youtube dQw4w9WgXcQ" and "dQw4w9WgXcQ" find the same entry.
func (l *Ledger) Contains(id string) (bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		if entryMatches(entry, id) {
			return true, nil
		}
	}

	return false, nil
}

// Remove deletes a single identifier from the ledger so the next run
// re-downloads that item. The file is rewritten atomically.
func (l *Ledger) Remove(id string) error {
	entries, err := l.Entries()
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(entries))
	removed := false

	for _, entry := range entries {
		if !removed && entryMatches(entry, id) {
			removed = true

			continue
		}

		kept = append(kept, entry)
	}

	if !removed {
		return fmt.Errorf("%w: %q", errs.ErrArchiveEntryNotFound, id)
	}

	return l.rewrite(kept)
}

// Clear deletes the archive file entirely; every item becomes
// not-yet-downloaded on the next run. A missing file is a no-op.
func (l *Ledger) Clear() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove archive: %w", err)
	}

	return nil
}

func (l *Ledger) rewrite(entries []string) error {
	dir := filepath.Dir(l.path)

	tmp, err := os.CreateTemp(dir, consts.ArchiveFilename+".*")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	for _, entry := range entries {
		if _, err := fmt.Fprintln(tmp, entry); err != nil {
			return fmt.Errorf("write temp archive: %w", err)
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}

	if err := os.Chmod(tmpPath, filePerm); err != nil {
		return fmt.Errorf("chmod temp archive: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("replace archive: %w", err)
	}

	return nil
}

func entryMatches(entry, id string) bool {
	if entry == id {
		return true
	}

	fields := strings.Fields(entry)

	return len(fields) > 1 && fields[len(fields)-1] == id
}
