package outbox

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendBatch_PerItemResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ingressRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Group != "group-a" {
			t.Fatalf("expected group-a, got %q", req.Group)
		}
		if len(req.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(req.Items))
		}

		resp := ingressResponse{Results: []ingressItemResult{
			{ID: req.Items[0].ID, Result: "SUCCESS"},
			{ID: req.Items[1].ID, Result: "BAD_REQUEST"},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewAPIClient(&APIClientConfig{BaseURL: server.URL})
	items := []*OutboxItem{
		{ID: "one", Type: OutboxItemTypeEvent, Payload: `{"a":1}`},
		{ID: "two", Type: OutboxItemTypeEvent, Payload: `{"a":2}`},
	}

	result, err := client.SendEventBatch(t.Context(), "group-a", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.SuccessIDs) != 1 || result.SuccessIDs[0] != "one" {
		t.Fatalf("expected item one to succeed, got %+v", result.SuccessIDs)
	}
	if status, ok := result.FailedItems["two"]; !ok || status != StatusBadRequest {
		t.Fatalf("expected item two to fail with BAD_REQUEST, got %v", result.FailedItems)
	}
}

func TestSendBatch_GatewayFailureAppliesToWholeBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	client := NewAPIClient(&APIClientConfig{BaseURL: server.URL})
	items := []*OutboxItem{
		{ID: "one", Type: OutboxItemTypeEvent, Payload: `{}`},
		{ID: "two", Type: OutboxItemTypeEvent, Payload: `{}`},
	}

	result, err := client.SendEventBatch(t.Context(), "group-a", items)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(result.FailedItems) != 2 {
		t.Fatalf("expected both items to fail, got %+v", result.FailedItems)
	}
	for id, status := range result.FailedItems {
		if status != StatusGatewayError {
			t.Fatalf("item %s: expected GATEWAY_ERROR, got %v", id, status)
		}
	}
}

func TestIngressResultToStatus(t *testing.T) {
	cases := map[string]OutboxStatus{
		"SUCCESS":       StatusSuccess,
		"BAD_REQUEST":   StatusBadRequest,
		"UNAUTHORIZED":  StatusUnauthorized,
		"FORBIDDEN":     StatusForbidden,
		"GATEWAY_ERROR": StatusGatewayError,
		"UNKNOWN_CODE":  StatusInternalError,
	}
	for input, want := range cases {
		if got := ingressResultToStatus(input); got != want {
			t.Errorf("ingressResultToStatus(%q) = %v, want %v", input, got, want)
		}
	}
}
