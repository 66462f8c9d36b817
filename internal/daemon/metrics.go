package daemon

import (
	"github.com/VictoriaMetrics/metrics"
)

type daemonMetrics struct {
	set *metrics.Set

	notifications   *metrics.Counter
	dumps           *metrics.Counter
	dumpFailures    *metrics.Counter
	dumpsCoalesced  *metrics.Counter
	restores        *metrics.Counter
	restoreFailures *metrics.Counter
	dumpDuration    *metrics.Histogram
}

func newMetrics(set *metrics.Set) *daemonMetrics {
	if set == nil {
		set = metrics.NewSet()
	}
	return &daemonMetrics{
		set:             set,
		notifications:   set.NewCounter("regsync_notifications_total"),
		dumps:           set.NewCounter("regsync_dumps_total"),
		dumpFailures:    set.NewCounter("regsync_dump_failures_total"),
		dumpsCoalesced:  set.NewCounter("regsync_dumps_coalesced_total"),
		restores:        set.NewCounter("regsync_restores_total"),
		restoreFailures: set.NewCounter("regsync_restore_failures_total"),
		dumpDuration:    set.NewHistogram("regsync_dump_duration_seconds"),
	}
}
