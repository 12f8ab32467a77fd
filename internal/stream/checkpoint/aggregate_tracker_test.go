package checkpoint

import "testing"

func TestAggregateTrackerBlocksDuplicates(t *testing.T) {
	tracker := NewAggregateTracker()

	tracker.RegisterBatch(1, map[string]struct{}{"agg-1": {}})

	if !tracker.IsInFlight("agg-1") {
		t.Fatal("expected agg-1 to be in flight")
	}
	if tracker.IsInFlight("agg-2") {
		t.Fatal("expected agg-2 to not be in flight")
	}

	released := tracker.CompleteBatch(1)
	if len(released) != 0 {
		t.Fatalf("expected no released documents, got %d", len(released))
	}
	if tracker.IsInFlight("agg-1") {
		t.Fatal("expected agg-1 to be free after its batch completes")
	}
}

func TestAggregateTrackerReleasesPendingOnComplete(t *testing.T) {
	tracker := NewAggregateTracker()

	tracker.RegisterBatch(1, map[string]struct{}{"agg-1": {}})
	tracker.AddPending(PendingDocument{AggregateID: "agg-1", Document: map[string]interface{}{"test": 1}})

	if tracker.PendingCount() != 1 {
		t.Fatalf("expected 1 pending document, got %d", tracker.PendingCount())
	}

	released := tracker.CompleteBatch(1)
	if len(released) != 1 || released[0].AggregateID != "agg-1" {
		t.Fatalf("expected agg-1 document to be released, got %v", released)
	}
	if tracker.PendingCount() != 0 {
		t.Fatalf("expected 0 pending documents after release, got %d", tracker.PendingCount())
	}
}
