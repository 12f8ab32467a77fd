package checkpoint

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// PendingDocument is a change-stream document whose aggregate was in flight
// when it arrived, parked until that aggregate's batch completes.
type PendingDocument struct {
	AggregateID string
	Document    bson.M
	ResumeToken bson.Raw
}

// AggregateTracker prevents two in-flight batches from touching the same
// aggregate concurrently. Documents for an aggregate already in flight are
// parked in Pending and released once the blocking batch completes.
type AggregateTracker struct {
	mu       sync.Mutex
	inFlight map[uint64]map[string]struct{}
	pending  []PendingDocument
}

// NewAggregateTracker creates an empty aggregate tracker.
func NewAggregateTracker() *AggregateTracker {
	return &AggregateTracker{
		inFlight: make(map[uint64]map[string]struct{}),
	}
}

// IsInFlight reports whether aggregateID is owned by any in-flight batch.
func (t *AggregateTracker) IsInFlight(aggregateID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isInFlightLocked(aggregateID)
}

func (t *AggregateTracker) isInFlightLocked(aggregateID string) bool {
	for _, ids := range t.inFlight {
		if _, ok := ids[aggregateID]; ok {
			return true
		}
	}
	return false
}

// RegisterBatch associates a set of aggregate IDs with an in-flight batch.
func (t *AggregateTracker) RegisterBatch(batchSeq uint64, aggregateIDs map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight[batchSeq] = aggregateIDs
}

// CompleteBatch releases a batch's aggregate IDs and returns any pending
// documents that are no longer blocked by a remaining in-flight batch.
func (t *AggregateTracker) CompleteBatch(batchSeq uint64) []PendingDocument {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.inFlight, batchSeq)

	var ready, stillPending []PendingDocument
	for _, doc := range t.pending {
		if t.isInFlightLocked(doc.AggregateID) {
			stillPending = append(stillPending, doc)
		} else {
			ready = append(ready, doc)
		}
	}
	t.pending = stillPending

	return ready
}

// AddPending parks a document blocked by an in-flight aggregate.
func (t *AggregateTracker) AddPending(doc PendingDocument) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, doc)
}

// PendingCount returns the number of parked documents.
func (t *AggregateTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// InFlightBatchCount returns the number of batches currently registered.
func (t *AggregateTracker) InFlightBatchCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight)
}
