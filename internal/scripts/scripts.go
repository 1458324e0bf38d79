// Package scripts stores user script sources, one file per version. A
// function references its active version by blob name; older versions are
// kept on disk.
package scripts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tagpipe-io/tagpipe/internal/fileutil"
)

// Store manages script source blobs under a single directory.
type Store struct {
	dir string
}

// New returns a script store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Save writes a new script version for the function and returns its blob
// name. Existing versions are left in place.
func (s *Store) Save(functionID, source string) (string, error) {
	ref := fmt.Sprintf("%s_%s.py", functionID, fileutil.TruncString(uuid.New().String(), 8))
	path := filepath.Join(s.dir, ref)
	if err := os.WriteFile(path, []byte(source), 0640); err != nil {
		return "", fmt.Errorf("failed to write script %s: %w", ref, err)
	}
	return ref, nil
}

// Read returns the source of a script blob.
func (s *Store) Read(ref string) (string, error) {
	data, err := os.ReadFile(s.Path(ref))
	if err != nil {
		return "", fmt.Errorf("failed to read script %s: %w", ref, err)
	}
	return string(data), nil
}

// Path returns the path of a script blob inside the scripts directory; it is
// absolute only when that directory is. The ref is reduced to its
// basename so a crafted ref cannot escape the scripts directory.
func (s *Store) Path(ref string) string {
	return filepath.Join(s.dir, filepath.Base(ref))
}

// Versions lists the blob names saved for a function, sorted by name.
func (s *Store) Versions(functionID string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scripts dir: %w", err)
	}
	var refs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), functionID+"_") {
			refs = append(refs, entry.Name())
		}
	}
	return refs, nil
}
