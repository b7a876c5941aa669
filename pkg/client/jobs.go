package client

import (
	"errors"
	"sync"

	"github.com/makeasinger/controlpanel/pkg/protocol"
)

// ErrJobTrackingLost ends a JobWatch whose connection dropped. Events sent
// while the client was away are not replayed; JobStatus reports where the
// job stands.
var ErrJobTrackingLost = errors.New("job tracking lost: connection dropped")

// JobWatch follows one job started by this client. Progress receives every
// jobProgress event for the job, in order, and is closed when the job
// completes. Complete then yields the single jobComplete event.
//
// If the connection drops first, both channels are closed without a
// completion and Err returns ErrJobTrackingLost.
type JobWatch struct {
	JobID    int64
	Progress <-chan protocol.JobProgress
	Complete <-chan protocol.JobComplete

	progress chan protocol.JobProgress
	complete chan protocol.JobComplete
	err      error
}

// Err is nil while the watch is open or after the job completed. It is
// only meaningful once Progress has been closed.
func (w *JobWatch) Err() error {
	return w.err
}

const jobEventBuffer = 128

// jobTable routes job events to the watches started through StartJob.
// Events for other jobs are ignored.
type jobTable struct {
	mu      sync.Mutex
	watches map[int64]*JobWatch
}

func newJobTable(d *Dispatcher) *jobTable {
	t := &jobTable{watches: make(map[int64]*JobWatch)}
	d.Subscribe(protocol.TypeJobProgress, t.onProgress)
	d.Subscribe(protocol.TypeJobComplete, t.onComplete)
	return t
}

func (t *jobTable) track(jobID int64) *JobWatch {
	progress := make(chan protocol.JobProgress, jobEventBuffer)
	complete := make(chan protocol.JobComplete, 1)
	w := &JobWatch{
		JobID:    jobID,
		Progress: progress,
		Complete: complete,
		progress: progress,
		complete: complete,
	}
	t.mu.Lock()
	t.watches[jobID] = w
	t.mu.Unlock()
	return w
}

// untrack stops routing events for jobID. The watch's channels stay open.
func (t *jobTable) untrack(jobID int64) {
	t.mu.Lock()
	delete(t.watches, jobID)
	t.mu.Unlock()
}

// lose ends every open watch with ErrJobTrackingLost.
func (t *jobTable) lose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, w := range t.watches {
		delete(t.watches, id)
		w.err = ErrJobTrackingLost
		close(w.progress)
		close(w.complete)
	}
}

func (t *jobTable) tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watches)
}

// Watch channels are only sent on and closed with mu held, since lose runs
// on the connection's event loop rather than on the reader.
func (t *jobTable) onProgress(env *protocol.Envelope) {
	var ev protocol.JobProgress
	if err := env.Bind(&ev); err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.watches[ev.JobID]
	if w == nil {
		return
	}
	// a watcher that stopped reading loses events rather than stalling the reader
	select {
	case w.progress <- ev:
	default:
	}
}

func (t *jobTable) onComplete(env *protocol.Envelope) {
	var ev protocol.JobComplete
	if err := env.Bind(&ev); err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.watches[ev.JobID]
	if w == nil {
		return
	}
	delete(t.watches, ev.JobID)
	w.complete <- ev
	close(w.progress)
	close(w.complete)
}
