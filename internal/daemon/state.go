package daemon

// State is the coordinator's lifecycle state.
type State int32

const (
	// StateIdle is the state before Run.
	StateIdle State = iota
	// StateRestoreInProgress covers loading and applying the document.
	StateRestoreInProgress
	// StateWatching means the subscription is live and no dump is running.
	StateWatching
	// StateBackupInProgress covers reading the store and saving the document.
	StateBackupInProgress
	// StateStopped is final.
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRestoreInProgress:
		return "restore-in-progress"
	case StateWatching:
		return "watching"
	case StateBackupInProgress:
		return "backup-in-progress"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Mode selects which steps Run performs.
type Mode int

const (
	// ModeSync restores, dumps, then watches until cancelled.
	ModeSync Mode = iota
	// ModeRestore restores and returns.
	ModeRestore
	// ModeBackup dumps once and returns.
	ModeBackup
)

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeRestore:
		return "restore"
	case ModeBackup:
		return "backup"
	default:
		return "unknown"
	}
}

func (m Mode) restores() bool { return m == ModeSync || m == ModeRestore }
func (m Mode) dumps() bool    { return m == ModeSync || m == ModeBackup }
func (m Mode) watches() bool  { return m == ModeSync }
