package workspace

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Export writes a zip archive of the directory at path to wr.
// Entry names are relative to the exported directory.
func (w *Workspace) Export(path string, wr io.Writer) error {
	resolved, err := w.Resolve(path)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(wr)
	defer zw.Close()

	return filepath.Walk(resolved, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(resolved, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}

		f, err := zw.Create(rel)
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(f, src)
		return err
	})
}

// Import extracts a zip archive into the directory at path. Every entry
// name is validated against the root before extraction, so a crafted
// archive cannot write outside the sandbox.
func (w *Workspace) Import(path string, r io.ReaderAt, size int64) error {
	destDir, err := w.MkdirAll(path)
	if err != nil {
		return err
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("invalid archive: %w", err)
	}

	for _, f := range zr.File {
		name := filepath.FromSlash(f.Name)
		target, err := w.Resolve(filepath.Join(destDir, name))
		if err != nil {
			return err
		}
		// Resolve handles "..", but reject entries that land outside the
		// destination directory itself.
		if target != destDir && !strings.HasPrefix(target, destDir+string(filepath.Separator)) {
			return fmt.Errorf("%w: archive entry %s", ErrForbidden, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
