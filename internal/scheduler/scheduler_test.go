package scheduler

import "testing"

// === Group Gating Unit Tests ===

func TestLowestIDPerGroupIgnoresEmptyGroup(t *testing.T) {
	jobs := []*DispatchJob{
		{ID: "a", MessageGroup: ""},
		{ID: "b", MessageGroup: ""},
	}

	lowest := lowestIDPerGroup(jobs)
	if len(lowest) != 0 {
		t.Errorf("expected no groups tracked, got %d", len(lowest))
	}
}

func TestLowestIDPerGroupPicksLowest(t *testing.T) {
	jobs := []*DispatchJob{
		{ID: "003", MessageGroup: "order-42"},
		{ID: "001", MessageGroup: "order-42"},
		{ID: "002", MessageGroup: "order-42"},
		{ID: "010", MessageGroup: "order-99"},
	}

	lowest := lowestIDPerGroup(jobs)
	if lowest["order-42"] != "001" {
		t.Errorf("expected order-42 lowest to be 001, got %s", lowest["order-42"])
	}
	if lowest["order-99"] != "010" {
		t.Errorf("expected order-99 lowest to be 010, got %s", lowest["order-99"])
	}
}

func TestFilterByGroupGateAllowsUngroupedJobs(t *testing.T) {
	jobs := []*DispatchJob{
		{ID: "a", MessageGroup: ""},
		{ID: "b", MessageGroup: ""},
	}

	allowed, gated := filterByGroupGate(jobs, map[string]string{}, map[string]bool{})
	if gated != 0 {
		t.Errorf("expected no ungrouped jobs gated, got %d", gated)
	}
	if len(allowed) != 2 {
		t.Errorf("expected both ungrouped jobs allowed, got %d", len(allowed))
	}
}

func TestFilterByGroupGateHoldsBackNonLowestID(t *testing.T) {
	jobs := []*DispatchJob{
		{ID: "001", MessageGroup: "order-42"},
		{ID: "002", MessageGroup: "order-42"},
	}
	lowest := map[string]string{"order-42": "001"}

	allowed, gated := filterByGroupGate(jobs, lowest, map[string]bool{})
	if gated != 1 {
		t.Fatalf("expected 1 job gated, got %d", gated)
	}
	if len(allowed) != 1 || allowed[0].ID != "001" {
		t.Fatalf("expected only job 001 allowed, got %+v", allowed)
	}
}

func TestFilterByGroupGateBlocksWhenGroupInFlight(t *testing.T) {
	jobs := []*DispatchJob{
		{ID: "001", MessageGroup: "order-42"},
	}
	lowest := map[string]string{"order-42": "001"}
	inFlight := map[string]bool{"order-42": true}

	allowed, gated := filterByGroupGate(jobs, lowest, inFlight)
	if gated != 1 {
		t.Fatalf("expected the lowest-id job to be gated while its group is in flight, got %d gated", gated)
	}
	if len(allowed) != 0 {
		t.Fatalf("expected no jobs allowed, got %+v", allowed)
	}
}

func TestFilterByGroupGateMixedGroupsIndependent(t *testing.T) {
	jobs := []*DispatchJob{
		{ID: "001", MessageGroup: "order-42"},
		{ID: "002", MessageGroup: "order-42"},
		{ID: "010", MessageGroup: "order-99"},
		{ID: "x", MessageGroup: ""},
	}
	lowest := map[string]string{"order-42": "001", "order-99": "010"}

	allowed, gated := filterByGroupGate(jobs, lowest, map[string]bool{})
	if gated != 1 {
		t.Fatalf("expected exactly 1 job gated (order-42's 002), got %d", gated)
	}
	if len(allowed) != 3 {
		t.Fatalf("expected 3 jobs allowed, got %d: %+v", len(allowed), allowed)
	}
}
