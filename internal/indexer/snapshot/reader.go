package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
)

// Decode parses a snapshot written by Encode. Missing tables decode as empty.
func Decode(r io.Reader) (*index.Snapshot, error) {
	var snap index.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSnapshotCorrupt, err)
	}
	if snap.Index == nil {
		snap.Index = make(map[string]index.PostingList)
	}
	if snap.DocLengths == nil {
		snap.DocLengths = make(map[string]int)
	}
	if snap.DocTerms == nil {
		snap.DocTerms = make(map[string][]string)
	}
	return &snap, nil
}

// Read loads the snapshot stored at path. found is false, with a nil error,
// when no snapshot exists yet.
func Read(path string) (snap *index.Snapshot, found bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("opening snapshot file: %w", err)
	}
	defer f.Close()

	snap, err = Decode(bufio.NewReader(f))
	if err != nil {
		return nil, false, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	return snap, true, nil
}
