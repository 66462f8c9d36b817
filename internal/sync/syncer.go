package sync

import (
	"log"
	"os"
	"time"

	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

// Syncer moves snapshots between a live store and package tree, logging what
// it does.
//
// The syncer holds no state between calls: each Read produces a brand-new
// snapshot and each Apply is independent. It is safe for concurrent use as
// long as the store backend is.
type Syncer interface {
	// Read returns a fresh snapshot of the subtree rooted at k.
	//
	// Returns an error if any key cannot be enumerated or opened, or any
	// value cannot be fetched or serialized. The error aborts the whole read.
	//
	// Example:
	//   snapshot, err := syncer.Read(root)
	Read(k store.Key) (*tree.Node, error)

	// Apply writes model onto k, deleting extras when strict is set.
	//
	// The returned Stats are valid even when an error is returned and count
	// the changes made before the failure.
	//
	// Example:
	//   stats, err := syncer.Apply(snapshot, root, false)
	Apply(model *tree.Node, k store.Key, strict bool) (Stats, error)
}

// syncer implements the Syncer interface.
type syncer struct {
	logger *log.Logger
}

// New creates a new Syncer.
//
// If logger is nil, a default logger writing to stderr is used.
func New(logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{logger: logger}
}

// Read implements Syncer.Read.
func (s *syncer) Read(k store.Key) (*tree.Node, error) {
	start := time.Now()

	node, err := Read(k)
	if err != nil {
		return nil, err
	}

	keys, values := node.Count()
	s.logger.Printf("Read %s: %d keys, %d values in %v", k.Path(), keys, values, time.Since(start).Round(time.Millisecond))
	return node, nil
}

// Apply implements Syncer.Apply.
func (s *syncer) Apply(model *tree.Node, k store.Key, strict bool) (Stats, error) {
	mode := "merge"
	if strict {
		mode = "strict"
	}

	var stats Stats
	if err := Apply(model, k, strict, &stats); err != nil {
		s.logger.Printf("Apply (%s) to %s aborted after %s", mode, k.Path(), stats)
		return stats, err
	}

	s.logger.Printf("Applied (%s) to %s: %s", mode, k.Path(), stats)
	return stats, nil
}
