//go:build !windows

package document

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// replaceFile moves tmp over path. The previous content of path is first
// hard-linked to backup, so path itself is never missing: rename(2) swaps the
// directory entry in one step.
func replaceFile(tmp, path, backup string) error {
	if err := os.Link(path, backup); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Nothing to back up.
		default:
			// Filesystems without hard links get a flushed copy instead.
			if err := copyFile(path, backup); err != nil {
				return fmt.Errorf("failed to back up %s: %w", path, err)
			}
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return syncDir(filepath.Dir(path))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// syncDir makes the rename durable. Errors are ignored on filesystems that do
// not support fsync on directories.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}
