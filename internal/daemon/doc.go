// Package daemon provides the sync coordinator that keeps a store subtree and
// its document in step.
//
// The coordinator:
//  1. Restores the subtree from the document, if one exists
//  2. Dumps the subtree to the document once
//  3. Subscribes to change notifications on the subtree and dumps again after
//     each burst of changes
//  4. Shuts down cooperatively, letting an in-flight dump finish
//
// Notifications only mark a single-slot dirty signal. A dedicated worker
// drains it and performs dumps serially, so any number of notifications that
// arrive during one dump collapse into exactly one trailing dump.
package daemon
