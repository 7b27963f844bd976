package stowr

import (
	"fmt"
	"path/filepath"

	"github.com/stowr/stowr/index/document"
	"github.com/stowr/stowr/index/sqlite"
)

// MigrateToRelational copies every entry and refcount from an existing
// index/document YAML file under storagePath into a fresh index/sqlite
// database alongside it. It is the conversion path §4.3/S6 name as
// advisory: IndexMode itself only ever resolves a backend at Open time
// (see DESIGN.md), so switching from "document" to "relational" for a
// storage root that already has history requires running this first.
// The caller must not have an Engine open on storagePath while this
// runs; it does not touch the object store, since object files are
// addressed independently of whichever index backend names them.
func MigrateToRelational(storagePath string) error {
	docPath := filepath.Join(storagePath, "index.yaml")
	sqlitePath := filepath.Join(storagePath, "index.db")

	doc, err := document.Open(docPath)
	if err != nil {
		return fmt.Errorf("migrate: open document index: %w: %v", ErrIndex, err)
	}
	defer doc.Close()

	entries, err := doc.List()
	if err != nil {
		return fmt.Errorf("migrate: list entries: %w: %v", ErrIndex, err)
	}
	refCounts, err := doc.AllRefCounts()
	if err != nil {
		return fmt.Errorf("migrate: list refcounts: %w: %v", ErrIndex, err)
	}

	sq, err := sqlite.Open(sqlitePath)
	if err != nil {
		return fmt.Errorf("migrate: open sqlite index: %w: %v", ErrIndex, err)
	}
	defer sq.Close()

	for _, entry := range entries {
		if err := sq.Insert(entry); err != nil {
			return fmt.Errorf("migrate: insert %s: %w: %v", entry.OriginalPath, ErrIndex, err)
		}
	}
	for id, n := range refCounts {
		if err := sq.SetRefCount(id, n); err != nil {
			return fmt.Errorf("migrate: set refcount %s: %w: %v", id, ErrIndex, err)
		}
	}
	return nil
}
