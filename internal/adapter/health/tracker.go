package health

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/flowgate/internal/core/domain"
)

const (
	DefaultLogTimeout = 2 * time.Minute
	logEveryNFailures = 10
)

// StatusTransitionTracker reduces logging noise by only logging state
// changes and a periodic summary of repeated failures.
type StatusTransitionTracker struct {
	entries *xsync.Map[string, *statusEntry]
	now     func() time.Time
}

type statusEntry struct {
	lastState   atomic.Value // domain.HealthState
	lastLogTime atomic.Int64
	errorCount  atomic.Int64
}

func NewStatusTransitionTracker() *StatusTransitionTracker {
	return &StatusTransitionTracker{
		entries: xsync.NewMap[string, *statusEntry](),
		now:     time.Now,
	}
}

// ShouldLog reports whether this probe outcome is worth a log line and the
// number of repeated failures folded into it.
func (st *StatusTransitionTracker) ShouldLog(backendID string, newState domain.HealthState, isError bool) (bool, int) {
	now := st.now()
	entry, loaded := st.entries.LoadOrCompute(backendID, func() (*statusEntry, bool) {
		e := &statusEntry{}
		e.lastState.Store(newState)
		e.lastLogTime.Store(now.UnixNano())
		return e, false
	})
	if !loaded {
		return true, 0
	}

	if old, _ := entry.lastState.Load().(domain.HealthState); old != newState {
		entry.lastState.Store(newState)
		entry.errorCount.Store(0)
		entry.lastLogTime.Store(now.UnixNano())
		return true, 0
	}

	if isError {
		count := entry.errorCount.Add(1)
		lastLog := time.Unix(0, entry.lastLogTime.Load())
		if count%logEveryNFailures == 0 || now.Sub(lastLog) > DefaultLogTimeout {
			entry.lastLogTime.Store(now.UnixNano())
			return true, int(count)
		}
	}

	return false, int(entry.errorCount.Load())
}

func (st *StatusTransitionTracker) CleanupBackend(backendID string) {
	st.entries.Delete(backendID)
}
