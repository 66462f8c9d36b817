// Package document persists tree snapshots to disk.
//
// A document is a single file holding one serialized tree.Node. Save is
// atomic and crash-safe: at every instant either the previous complete
// document or the new complete document is readable at the target path, and
// the previous content is kept next to it with a ".bak" suffix.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/regsync/regsync/internal/tree"
)

// BackupSuffix is appended to the document path to name the backup file.
const BackupSuffix = ".bak"

var (
	// ErrInvalid is returned by Load when the document is missing, empty,
	// or cannot be decoded.
	ErrInvalid = errors.New("document invalid")

	// ErrAtomicWrite is returned by Save when writing the temporary file or
	// replacing the document fails. The previous document is left intact.
	ErrAtomicWrite = errors.New("atomic document write failed")
)

// syncFile flushes f to stable storage. Tests replace it to simulate a crash
// before the temporary file is complete.
var syncFile = func(f *os.File) error {
	return f.Sync()
}

// Exists reports whether path names a regular file with nonzero size. An
// empty document is the "nothing to restore" signal, not a decode target.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat document %s: %w", path, err)
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

// Touch creates an empty document at path if nothing exists there yet, so
// that permission problems surface before any store work starts.
func Touch(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create document directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", path, err)
	}
	return f.Close()
}

// Load reads and decodes the document at path using the codec selected by
// its extension.
func Load(path string) (*tree.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalid, path, err)
	}
	return Decode(CodecFor(path), data)
}

// Decode decodes data with c and checks the tree invariants.
func Decode(c Codec, data []byte) (*tree.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalid)
	}

	node, err := c.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s document: %v", ErrInvalid, c.Name(), err)
	}
	if node == nil {
		return nil, fmt.Errorf("%w: document has no root node", ErrInvalid)
	}
	normalize(node)
	if err := node.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return node, nil
}

// Save writes node to path atomically:
//
//  1. encode into a temporary file in the same directory
//  2. flush and close the temporary file
//  3. remove any stale backup at path+".bak"
//  4. replace path with the temporary file, moving the previous content to
//     path+".bak" in the same step
//
// On failure the temporary file is removed and path is left untouched.
func Save(path string, node *tree.Node) error {
	c := CodecFor(path)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", ErrAtomicWrite, err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := c.Encode(tmp, node); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: failed to encode document: %v", ErrAtomicWrite, err)
	}
	if err := syncFile(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: failed to flush temp file: %v", ErrAtomicWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temp file: %v", ErrAtomicWrite, err)
	}

	backup := path + BackupSuffix
	if err := os.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to remove stale backup %s: %v", ErrAtomicWrite, backup, err)
	}

	if err := replaceFile(tmpPath, path, backup); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %v", ErrAtomicWrite, path, err)
	}
	committed = true
	return nil
}

// normalize replaces nil slices decoded from "null" with empty ones.
func normalize(n *tree.Node) {
	if n.Values == nil {
		n.Values = []tree.Value{}
	}
	if n.SubKeys == nil {
		n.SubKeys = []*tree.Node{}
	}
	for _, c := range n.SubKeys {
		if c != nil {
			normalize(c)
		}
	}
}
