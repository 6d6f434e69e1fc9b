// Package library maps item names onto folders under the configured
// download roots.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrItemNotFound          = errors.New("item directory not found")
	ErrInvalidDirectoryIndex = errors.New("invalid additional directory index")
	ErrNoDownloadDirectory   = errors.New("download directory not set")
)

// SidecarName is the record file kept inside every item folder.
func SidecarName(item string) string {
	return item + ".sidecar.json"
}

type Location struct {
	Root    string
	ItemDir string
	Item    string
}

type Resolver struct {
	roots []string
}

// NewResolver takes the primary root followed by additional roots.
func NewResolver(roots []string) *Resolver {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		cleaned = append(cleaned, strings.TrimSpace(root))
	}
	return &Resolver{roots: cleaned}
}

func (r *Resolver) Roots() []string {
	return append([]string(nil), r.roots...)
}

func (r *Resolver) Primary() string {
	if len(r.roots) == 0 {
		return ""
	}
	return r.roots[0]
}

// Resolve finds or allocates the folder for itemName.
//
// For updates the existing folder is located across all roots and emptied
// of everything except the sidecar record before returning. This is
// destructive, so callers treat a successful update resolve as the point
// of no return for the old content.
func (r *Resolver) Resolve(itemName string, isUpdate bool, rootIndex int) (Location, error) {
	if r.Primary() == "" {
		return Location{}, ErrNoDownloadDirectory
	}

	item := SanitizeName(itemName)
	if item == "" {
		return Location{}, fmt.Errorf("item name %q is empty after sanitizing", itemName)
	}

	if isUpdate {
		loc, err := r.Locate(item)
		if err != nil {
			return Location{}, err
		}
		if err := clearExceptSidecar(loc.ItemDir, SidecarName(item)); err != nil {
			return Location{}, err
		}
		return loc, nil
	}

	if rootIndex < 0 || rootIndex >= len(r.roots) || r.roots[rootIndex] == "" {
		return Location{}, fmt.Errorf("%w: %d", ErrInvalidDirectoryIndex, rootIndex)
	}

	root := r.roots[rootIndex]
	dir := filepath.Join(root, item)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Location{}, fmt.Errorf("create item directory %s: %w", dir, err)
	}
	return Location{Root: root, ItemDir: dir, Item: item}, nil
}

// Locate returns the first root that holds a folder for itemName.
func (r *Resolver) Locate(itemName string) (Location, error) {
	item := SanitizeName(itemName)
	for _, root := range r.roots {
		if root == "" {
			continue
		}
		dir := filepath.Join(root, item)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		return Location{Root: root, ItemDir: dir, Item: item}, nil
	}
	return Location{}, fmt.Errorf("%w: %s", ErrItemNotFound, item)
}

func clearExceptSidecar(dir string, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read item directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.Name() == keep {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("clear %s for update: %w", path, err)
		}
	}
	return nil
}
