// Package ledger persists telemetry records as a single JSON array file.
//
// The ledger is append-only at the record level: existing entries are never
// rewritten or reordered. At the byte level every append is a full
// read-modify-write, so a Store assumes it is the only writer of its file.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chaz8081/weathercat-logger/internal/telemetry"
)

// Store failures.
var (
	ErrStoreUnavailable = errors.New("ledger: store unavailable")
	ErrCorruptStore     = errors.New("ledger: corrupt store")
	ErrWriteFailure     = errors.New("ledger: write failure")
)

// Store is a JSON array ledger at a fixed path.
type Store struct {
	path string
}

// Open returns a store for path. The file is not touched until Load or Append.
func Open(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Init creates the ledger file containing an empty array if it does not
// exist yet. Returns true when a file was created.
func Init(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("%w: create dir: %v", ErrWriteFailure, err)
		}
	}
	if err := writeAtomic(path, []byte("[]")); err != nil {
		return false, err
	}
	return true, nil
}

// Load reads every record in insertion order.
func (s *Store) Load() ([]telemetry.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []telemetry.Record{}, nil
	}
	if data[0] != '[' {
		return nil, fmt.Errorf("%w: %s is not a JSON array", ErrCorruptStore, s.path)
	}

	var records []telemetry.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if records == nil {
		records = []telemetry.Record{}
	}
	return records, nil
}

// Append adds rec after all existing records and rewrites the file.
// The file must already exist; see Init.
func (s *Store) Append(rec telemetry.Record) error {
	records, err := s.Load()
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrWriteFailure, err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}

	slog.Debug("[LEDGER] appended record", "path", s.path, "count", len(records))
	return nil
}

// writeAtomic writes data to a temp file beside path and renames it over path.
func writeAtomic(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrWriteFailure, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: sync: %v", ErrWriteFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close: %v", ErrWriteFailure, err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod: %v", ErrWriteFailure, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrWriteFailure, err)
	}
	return nil
}
