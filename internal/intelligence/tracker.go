package intelligence

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// tracker is the live state for one tracked session. generation is unique
// per StartTracking, so results from a stopped tracker are never mistaken
// for those of a newer one.
type tracker struct {
	sessionID  string
	generation uint64
	startedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}

	// seq numbers evaluations in the order they start.
	seq atomic.Uint64

	// deliverMu serializes deliveries and guards the fields below.
	deliverMu     sync.Mutex
	stopped       bool
	lastSeq       uint64
	lastEvaluated time.Time

	obsMu     sync.Mutex
	observers map[uint64]UpdateFunc
	nextObsID uint64
}

func newTracker(sessionID string, generation uint64, startedAt time.Time, cancel context.CancelFunc) *tracker {
	return &tracker{
		sessionID:  sessionID,
		generation: generation,
		startedAt:  startedAt,
		cancel:     cancel,
		done:       make(chan struct{}),
		observers:  make(map[uint64]UpdateFunc),
	}
}

func (t *tracker) addObserver(fn UpdateFunc) uint64 {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.nextObsID++
	t.observers[t.nextObsID] = fn
	return t.nextObsID
}

func (t *tracker) removeObserver(id uint64) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	delete(t.observers, id)
}

// observerList returns observers in registration order.
func (t *tracker) observerList() []UpdateFunc {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()

	ids := make([]uint64, 0, len(t.observers))
	for id := range t.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fns := make([]UpdateFunc, len(ids))
	for i, id := range ids {
		fns[i] = t.observers[id]
	}
	return fns
}

// beginEvaluation returns the start order of a new evaluation.
func (t *tracker) beginEvaluation() uint64 {
	return t.seq.Add(1)
}

// stop cancels the loop and waits out any delivery in progress.
func (t *tracker) stop() {
	t.cancel()
	t.deliverMu.Lock()
	t.stopped = true
	t.deliverMu.Unlock()
}
