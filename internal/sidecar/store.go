// Package sidecar reads and writes the JSON records kept beside each item.
//
// Both the worker process and gacq write the item record and nothing
// locks it. gacq only writes terminal states (stopped, failed, verified)
// after it has confirmed the worker for that item is gone.
package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jaa/game-acquire/internal/fileops"
	"github.com/jaa/game-acquire/internal/library"
)

const ManifestName = "filemap.sidecar.json"

var ErrNotFound = errors.New("sidecar not found")

type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type ManifestEntry struct {
	Size int64 `json:"size"`
}

// Manifest maps a path relative to the item folder to its expected size.
type Manifest map[string]ManifestEntry

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func RecordPath(itemDir string, item string) string {
	return filepath.Join(itemDir, library.SidecarName(item))
}

func (s *Store) Read(itemDir string, item string) (*Record, error) {
	path := RecordPath(itemDir, item)
	payload, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &record, nil
}

// Write replaces the whole record file. There is no merge with what is on
// disk; use Update for read-modify-write.
func (s *Store) Write(itemDir string, item string, record *Record) error {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar for %s: %w", item, err)
	}
	payload = append(payload, '\n')
	return fileops.WriteFileAtomic(RecordPath(itemDir, item), payload, 0o644)
}

func (s *Store) Update(itemDir string, item string, mutate func(*Record) error) error {
	record, err := s.Read(itemDir, item)
	if err != nil {
		return err
	}
	if err := mutate(record); err != nil {
		return err
	}
	return s.Write(itemDir, item, record)
}

func (s *Store) ReadManifest(itemDir string) (Manifest, error) {
	path := filepath.Join(itemDir, ManifestName)
	payload, err := readFile(path)
	if err != nil {
		return nil, err
	}

	manifest := Manifest{}
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return manifest, nil
}

func readFile(path string) ([]byte, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return payload, nil
}
