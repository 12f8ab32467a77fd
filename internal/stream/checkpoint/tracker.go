package checkpoint

import (
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// Store persists and retrieves a single resume token by key.
type Store interface {
	GetCheckpoint(key string) (bson.Raw, error)
	SaveCheckpoint(key string, token bson.Raw) error
}

// batchResult records the outcome of one completed batch.
type batchResult struct {
	resumeToken bson.Raw
	success     bool
	err         string
}

// Tracker tracks in-flight batches and advances the persisted checkpoint
// only through the longest contiguous run of completed sequences. Batches
// may complete out of order (batch 3 can finish before batch 1), but the
// checkpoint never skips ahead of a batch that hasn't completed yet - that
// would risk losing events on restart.
type Tracker struct {
	store         Store
	streamName    string
	checkpointKey string

	mu            sync.Mutex
	batches       map[uint64]batchResult
	lastCheckpointed uint64
	nextSeq       uint64
	fatalError    error
}

// NewTracker creates a checkpoint tracker backed by the given store.
func NewTracker(store Store, streamName, checkpointKey string) *Tracker {
	return &Tracker{
		store:         store,
		streamName:    streamName,
		checkpointKey: checkpointKey,
		batches:       make(map[uint64]batchResult),
		nextSeq:       1,
	}
}

// NextSequence allocates the next batch sequence number.
func (t *Tracker) NextSequence() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.nextSeq
	t.nextSeq++
	return seq
}

// MarkComplete records a batch as successfully processed and advances the
// checkpoint as far as the now-contiguous completed run allows.
func (t *Tracker) MarkComplete(seq uint64, resumeToken bson.Raw) {
	t.mu.Lock()
	t.batches[seq] = batchResult{resumeToken: resumeToken, success: true}
	t.mu.Unlock()

	t.advanceCheckpoint()
}

// MarkFailed records a batch as failed. The checkpoint will not advance
// past it, and the tracker records a fatal error for the watcher to observe.
func (t *Tracker) MarkFailed(seq uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches[seq] = batchResult{success: false, err: err.Error()}
	t.fatalError = err
}

// HasFatalError reports whether a batch has failed.
func (t *Tracker) HasFatalError() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fatalError != nil
}

// FatalError returns the recorded fatal error, if any.
func (t *Tracker) FatalError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fatalError
}

// InFlightCount returns the number of batches awaiting checkpoint advancement.
func (t *Tracker) InFlightCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.batches)
}

// LastCheckpointedSeq returns the highest sequence persisted so far.
func (t *Tracker) LastCheckpointedSeq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCheckpointed
}

// advanceCheckpoint walks forward from the last checkpointed sequence,
// persisting each contiguous completed batch's resume token and stopping
// at the first gap or failed batch.
func (t *Tracker) advanceCheckpoint() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		result, ok := t.batches[t.lastCheckpointed+1]
		if !ok || !result.success {
			return
		}

		seq := t.lastCheckpointed + 1
		delete(t.batches, seq)
		t.lastCheckpointed = seq

		if len(result.resumeToken) > 0 {
			if err := t.store.SaveCheckpoint(t.checkpointKey, result.resumeToken); err != nil {
				slog.Error("failed to save checkpoint", "stream", t.streamName, "error", err)
				continue
			}
			slog.Debug("checkpoint advanced", "stream", t.streamName, "batchSeq", seq)
		}
	}
}

// Reset clears all tracker state. Intended for tests.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches = make(map[uint64]batchResult)
	t.lastCheckpointed = 0
	t.nextSeq = 1
	t.fatalError = nil
}
