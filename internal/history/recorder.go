package history

import (
	"sync"

	"github.com/nmorales94/swapflow/internal/model"
)

// Recorder writes outcomes without ever failing its caller. A broken history
// database must not break a swap that already settled. Appends run on a
// detached goroutine so a contended lock never stalls the attempt; callers
// that are about to close the store should Wait first.
type Recorder struct {
	store *Store
	wg    sync.WaitGroup
}

func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Record(entry model.HistoryEntry) {
	if r == nil || r.store == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.store.Append(entry)
	}()
}

// Wait blocks until all dispatched appends have finished.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}
