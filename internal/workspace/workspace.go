// Package workspace confines all filesystem access to a projects root.
//
// Every path handed to the server by a client goes through Resolve before
// any I/O happens. Resolution canonicalizes the path, follows symlinks in
// its existing ancestry, and rejects anything that escapes the root.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrForbidden is returned when a path resolves outside the projects root.
var ErrForbidden = errors.New("path escapes projects root")

// Workspace resolves and validates paths against a projects root.
// It holds no mutable state and is safe for concurrent use.
type Workspace struct {
	root string
}

// New creates a Workspace rooted at root, creating the directory if needed.
func New(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid projects root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create projects root: %w", err)
	}
	// Canonicalize the root itself so prefix checks compare like with like.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve projects root: %w", err)
	}
	return &Workspace{root: resolved}, nil
}

// Root returns the canonical projects root.
func (w *Workspace) Root() string { return w.root }

// Resolve canonicalizes path and returns its absolute form, or ErrForbidden
// if the canonical form is not the root or a descendant of it. Relative
// paths are interpreted against the root. Resolve is idempotent: resolving
// an already-resolved path returns it unchanged.
func (w *Workspace) Resolve(path string) (string, error) {
	if path == "" || path == "." {
		return w.root, nil
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(w.root, abs)
	}
	abs = filepath.Clean(abs)

	// Follow symlinks in the deepest existing ancestor so a link pointing
	// out of the root cannot smuggle a descendant-looking path through.
	canonical, err := canonicalize(abs)
	if err != nil {
		return "", err
	}

	if canonical != w.root && !strings.HasPrefix(canonical, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrForbidden, path)
	}
	return canonical, nil
}

// canonicalize resolves symlinks for the longest existing prefix of abs and
// re-joins the non-existing remainder.
func canonicalize(abs string) (string, error) {
	existing := abs
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize path: %w", err)
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}

// Entry describes one directory entry in a List result.
type Entry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size"`
}

// Read returns the contents of a file inside the root.
func (w *Workspace) Read(path string) ([]byte, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

// Write writes data to a file inside the root, creating parent directories.
func (w *Workspace) Write(path string, data []byte) error {
	resolved, err := w.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return err
	}
	return os.WriteFile(resolved, data, 0644)
}

// List returns the entries of a directory inside the root.
func (w *Workspace) List(path string) ([]Entry, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return nil, err
	}

	dirents, err := os.ReadDir(resolved)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		entries = append(entries, Entry{
			Name:        d.Name(),
			IsDirectory: d.IsDir(),
			Size:        size,
		})
	}
	return entries, nil
}

// Delete removes a file or directory tree inside the root. The root itself
// cannot be deleted.
func (w *Workspace) Delete(path string) error {
	resolved, err := w.Resolve(path)
	if err != nil {
		return err
	}
	if resolved == w.root {
		return fmt.Errorf("%w: refusing to delete projects root", ErrForbidden)
	}
	return os.RemoveAll(resolved)
}

// MkdirAll creates a directory tree inside the root.
func (w *Workspace) MkdirAll(path string) (string, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	return resolved, os.MkdirAll(resolved, 0755)
}

// Duplicate recursively copies src to dst, both inside the root.
func (w *Workspace) Duplicate(src, dst string) error {
	srcResolved, err := w.Resolve(src)
	if err != nil {
		return err
	}
	dstResolved, err := w.Resolve(dst)
	if err != nil {
		return err
	}
	if dstResolved == srcResolved || strings.HasPrefix(dstResolved, srcResolved+string(filepath.Separator)) {
		return fmt.Errorf("cannot duplicate %s into itself", src)
	}
	return copyTree(srcResolved, dstResolved)
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		return os.WriteFile(dst, data, info.Mode().Perm())
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
