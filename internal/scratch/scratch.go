// Package scratch manages the temporary per-post directories that hold
// downloaded images between fetch and OCR.
package scratch

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Manager writes scratch files under a root directory, one subdirectory per
// post id. Subdirectory creation is idempotent so concurrent images of the
// same post do not race.
type Manager struct {
	root string
}

// New validates the root directory, creating it if absent, and checks that it
// is writable.
func New(root string) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("scratch root is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat scratch root: %w", err)
		}
		if mkErr := os.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create scratch root: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("scratch root is not a directory")
	}

	probe := filepath.Join(root, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("scratch root is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &Manager{root: root}, nil
}

// Save writes data to <root>/<postID>/<name> and returns the full path. Parent
// directories are created on demand.
func (m *Manager) Save(postID, name string, data []byte) (string, error) {
	if postID == "" || name == "" {
		return "", fmt.Errorf("post id and file name are required")
	}
	fullPath := filepath.Join(m.root, postID, name)
	if err := m.guard(fullPath); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return fullPath, nil
}

// Remove deletes the whole scratch directory for a post.
func (m *Manager) Remove(postID string) error {
	if postID == "" {
		return fmt.Errorf("post id is required")
	}
	dir := filepath.Join(m.root, postID)
	if err := m.guard(dir); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}

// guard rejects paths that escape the scratch root.
func (m *Manager) guard(path string) error {
	cleanRoot := filepath.Clean(m.root)
	cleanPath := filepath.Clean(path)
	if !strings.HasPrefix(cleanPath, cleanRoot+string(filepath.Separator)) {
		return fmt.Errorf("path escapes scratch root")
	}
	return nil
}

// FilenameFromURL derives a scratch file name from the path component of an
// image URL.
func FilenameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", fmt.Errorf("url %q has no path component", rawURL)
	}
	return name, nil
}
