// Package ingress implements the POST /ingress/batch endpoint the outbox
// processor's API client posts to: a batch of events or dispatch jobs
// sharing one message group, answered with a per-item result so the
// outbox can update each item's status independently instead of treating
// the whole batch as one outcome.
package ingress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flowcatalyst-oss/corepipe/internal/common/tsid"
	"github.com/flowcatalyst-oss/corepipe/internal/dispatchjob"
	"github.com/flowcatalyst-oss/corepipe/internal/event"
	"github.com/flowcatalyst-oss/corepipe/internal/outbox"
)

// itemRequest mirrors outbox.ingressItem's wire shape.
type itemRequest struct {
	ID      string                 `json:"id"`
	Type    outbox.OutboxItemType  `json:"type"`
	Payload json.RawMessage        `json:"payload"`
}

type batchRequest struct {
	Group string        `json:"group"`
	Items []itemRequest `json:"items"`
}

type itemResult struct {
	ID                string `json:"id"`
	Result            string `json:"result"`
	RetryAfterSeconds *int   `json:"retry_after_seconds,omitempty"`
}

type batchResponse struct {
	Results []itemResult `json:"results"`
}

// Handlers serves the ingress HTTP endpoints.
type Handlers struct {
	events        event.Repository
	dispatchJobs  dispatchjob.Repository
}

// NewHandlers creates ingress handlers backed by the given database.
func NewHandlers(db *mongo.Database) *Handlers {
	return &Handlers{
		events:       event.NewRepository(db),
		dispatchJobs: dispatchjob.NewRepository(db),
	}
}

// HandleBatch accepts a batch of events or dispatch jobs sharing one
// message group.
//
// @Summary		Ingest a batch of events or dispatch jobs
// @Description	Accepts a batch of events or dispatch jobs sharing one message group, answering with a per-item result.
// @Tags			Ingress
// @Accept			json
// @Produce		json
// @Param			batch	body		batchRequest	true	"Batch of items to ingest"
// @Success		200		{object}	batchResponse
// @Failure		400		{string}	string	"invalid request body"
// @Router			/ingress/batch [post]
func (h *Handlers) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	results := make([]itemResult, 0, len(req.Items))
	for _, item := range req.Items {
		results = append(results, h.insertOne(r.Context(), req.Group, item))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(batchResponse{Results: results})
}

func (h *Handlers) insertOne(ctx context.Context, group string, item itemRequest) itemResult {
	switch item.Type {
	case outbox.OutboxItemTypeEvent:
		var evt event.Event
		if err := json.Unmarshal(item.Payload, &evt); err != nil {
			return itemResult{ID: item.ID, Result: "BAD_REQUEST"}
		}
		if evt.ID == "" {
			evt.ID = tsid.Generate()
		}
		evt.MessageGroup = group
		evt.CreatedAt = time.Now()

		if err := h.events.InsertEvent(ctx, &evt); err != nil {
			slog.Error("failed to insert event", "id", evt.ID, "error", err)
			return itemResult{ID: item.ID, Result: "INTERNAL_ERROR"}
		}
		return itemResult{ID: item.ID, Result: "SUCCESS"}

	case outbox.OutboxItemTypeDispatchJob:
		var job dispatchjob.DispatchJob
		if err := json.Unmarshal(item.Payload, &job); err != nil {
			return itemResult{ID: item.ID, Result: "BAD_REQUEST"}
		}
		if job.ID == "" {
			job.ID = tsid.Generate()
		}
		job.MessageGroup = group
		job.Status = dispatchjob.DispatchStatusPending
		job.CreatedAt = time.Now()
		job.UpdatedAt = job.CreatedAt

		if err := h.dispatchJobs.Insert(ctx, &job); err != nil {
			slog.Error("failed to insert dispatch job", "id", job.ID, "error", err)
			return itemResult{ID: item.ID, Result: "INTERNAL_ERROR"}
		}
		return itemResult{ID: item.ID, Result: "SUCCESS"}

	default:
		return itemResult{ID: item.ID, Result: "BAD_REQUEST"}
	}
}
