// Canonical path computation and idempotent directory bootstrap for roots
// and collections (spec.md §4.A). Pure path arithmetic plus mkdir/stat —
// no locks, no format decisions. Every caller treats these paths as stable
// strings across process restarts, so collection names are validated here
// once rather than scattered across every caller.
package zds

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// MaxIDLen is the maximum byte length of a document identifier (spec.md §3).
const MaxIDLen = 255

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// nameOK validates a collection or document identifier against spec.md's
// allowed character set, applying to both since both are "printable, no
// path separators" strings used directly in file paths.
func nameOK(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	return idPattern.MatchString(s)
}

// layout resolves every on-disk path for a root directory.
type layout struct {
	root string
}

func newLayout(root string) *layout {
	return &layout{root: root}
}

func (l *layout) collectionsDir() string { return filepath.Join(l.root, "collections") }
func (l *layout) lockFile() string       { return filepath.Join(l.collectionsDir(), ".write.lock") }
func (l *layout) rootMetaFile() string   { return filepath.Join(l.root, "zds.json") }

func (l *layout) collectionDir(name string) string {
	return filepath.Join(l.collectionsDir(), name)
}
func (l *layout) metaDir(name string) string {
	return filepath.Join(l.collectionDir(name), "meta")
}
func (l *layout) logFile(name string) string {
	return filepath.Join(l.metaDir(name), "data.jsonl")
}
func (l *layout) manifestFile(name string) string {
	return filepath.Join(l.metaDir(name), "manifest.json")
}
func (l *layout) indexFile(name string) string {
	return filepath.Join(l.metaDir(name), "index.bin")
}
func (l *layout) docsDir(name string) string {
	return filepath.Join(l.collectionDir(name), "docs")
}
func (l *layout) docFile(name, id string) string {
	return filepath.Join(l.docsDir(name), id+".json")
}

// initRoot ensures collections/ exists under root. Idempotent.
func (l *layout) initRoot() error {
	if err := os.MkdirAll(l.collectionsDir(), 0755); err != nil {
		return fmt.Errorf("%w: init root: %v", ErrInvalidPath, err)
	}
	return nil
}

// validateRoot fails with ErrInvalidPath when collections/ is missing.
func (l *layout) validateRoot() error {
	info, err := os.Stat(l.collectionsDir())
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s has no collections/ directory", ErrInvalidPath, l.root)
	}
	return nil
}

// initCollection ensures the collection's subtree exists: its meta/
// directory always, and its docs/ directory only in per-document mode.
// Idempotent.
func (l *layout) initCollection(name string, docMode bool) error {
	if !nameOK(name, 255) {
		return fmt.Errorf("%w: collection name %q", ErrInvalidPath, name)
	}
	if err := os.MkdirAll(l.metaDir(name), 0755); err != nil {
		return fmt.Errorf("%w: init collection %s: %v", ErrInvalidPath, name, err)
	}
	if docMode {
		if err := os.MkdirAll(l.docsDir(name), 0755); err != nil {
			return fmt.Errorf("%w: init collection %s docs: %v", ErrInvalidPath, name, err)
		}
	}
	return nil
}

// validateCollection fails with ErrInvalidPath when required files are
// missing (the manifest, at minimum — the log file is created lazily by
// the log writer on first open so its absence alone isn't fatal).
func (l *layout) validateCollection(name string) error {
	if _, err := os.Stat(l.manifestFile(name)); err != nil {
		return fmt.Errorf("%w: collection %s missing manifest: %v", ErrInvalidPath, name, err)
	}
	return nil
}

// collectionExists probes for the collection's subtree without validating
// its contents in detail.
func (l *layout) collectionExists(name string) bool {
	info, err := os.Stat(l.collectionDir(name))
	return err == nil && info.IsDir()
}

// listCollections returns the immediate subdirectories of collections/.
func (l *layout) listCollections() ([]string, error) {
	entries, err := os.ReadDir(l.collectionsDir())
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", ErrInvalidPath, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
