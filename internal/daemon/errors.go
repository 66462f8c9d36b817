package daemon

import (
	"errors"

	"github.com/regsync/regsync/internal/document"
	"github.com/regsync/regsync/internal/store"
)

// ErrSetup marks failures to prepare a run: the document file cannot be
// created or the store root cannot be opened.
var ErrSetup = errors.New("setup failed")

// IsFatal reports whether err is a setup failure that should end the
// process with a distinct exit code.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrSetup) ||
		errors.Is(err, store.ErrUnsupportedRoot) ||
		errors.Is(err, store.ErrUnknownBackend)
}

// IsRetryable reports whether a failed dump may succeed on the next
// notification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, document.ErrAtomicWrite) || errors.Is(err, store.ErrAccess)
}
