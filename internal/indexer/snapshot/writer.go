// Package snapshot serialises index snapshots to durable JSON files and reads
// them back. Files are replaced atomically: the destination always holds
// either the previous complete snapshot or the new one.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/index"
	"github.com/dchest/safefile"
)

// Encode writes snap as a single JSON object.
func Encode(w io.Writer, snap *index.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot encode nil snapshot")
	}
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// Write serialises snap into a temporary file next to path, fsyncs it, and
// renames it over path.
func Write(path string, snap *index.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	f, err := safefile.Create(path, 0644)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	// Close after Commit is a no-op error; before Commit it removes the temp file.
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := Encode(bw, snap); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Commit(); err != nil {
		return fmt.Errorf("committing snapshot file: %w", err)
	}
	return nil
}
