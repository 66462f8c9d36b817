//go:build windows

package document

import (
	"errors"
	"io/fs"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32      = windows.NewLazySystemDLL("kernel32.dll")
	procReplaceFileW = modkernel32.NewProc("ReplaceFileW")
)

const replaceFileWriteThrough = 0x00000001

// replaceFile swaps tmp into path with ReplaceFileW, which moves the previous
// content to backup in the same call. A missing path is created with a
// write-through move instead, since ReplaceFileW requires an existing target.
func replaceFile(tmp, path, backup string) error {
	from, err := windows.UTF16PtrFromString(tmp)
	if err != nil {
		return err
	}
	to, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH)
	}

	bak, err := windows.UTF16PtrFromString(backup)
	if err != nil {
		return err
	}
	if err := procReplaceFileW.Find(); err != nil {
		return err
	}
	r1, _, callErr := procReplaceFileW.Call(
		uintptr(unsafe.Pointer(to)),
		uintptr(unsafe.Pointer(from)),
		uintptr(unsafe.Pointer(bak)),
		replaceFileWriteThrough,
		0,
		0,
	)
	if r1 == 0 {
		return callErr
	}
	return nil
}
