// Package stream provides MongoDB change stream processing
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/flowcatalyst-oss/corepipe/internal/dispatchjob"
	"github.com/flowcatalyst-oss/corepipe/internal/subscription"
)

// envelope is the wire shape POSTed to a subscriber's webhook when the
// subscription is not data_only: the full CloudEvents-style envelope
// rather than just the raw event data.
type envelope struct {
	ID            string                `json:"id"`
	Type          string                `json:"type"`
	Source        string                `json:"source"`
	Time          time.Time             `json:"time"`
	Data          json.RawMessage       `json:"data,omitempty"`
	CorrelationID string                `json:"correlationId,omitempty"`
	MessageGroup  string                `json:"messageGroup,omitempty"`
	ContextData   []envelopeContextItem `json:"contextData,omitempty"`
}

type envelopeContextItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DispatchMaterializer matches a newly committed event against every active
// subscription and inserts one dispatch job per match. A subscription
// matches when one of its bound event type patterns matches the event's
// type segment-wise (wildcard per colon-delimited segment) and its tenant
// is compatible (a tenant-less subscription matches every client; a
// tenanted one only matches its own).
type DispatchMaterializer struct {
	subscriptions subscription.Repository
	dispatchJobs  dispatchjob.Repository
}

// NewDispatchMaterializer creates a materializer backed by the given
// repositories.
func NewDispatchMaterializer(subscriptions subscription.Repository, dispatchJobs dispatchjob.Repository) *DispatchMaterializer {
	return &DispatchMaterializer{
		subscriptions: subscriptions,
		dispatchJobs:  dispatchJobs,
	}
}

// Materialize matches event against active subscriptions and inserts a
// PENDING dispatch job for each match.
func (m *DispatchMaterializer) Materialize(ctx context.Context, event bson.M) error {
	eventID, _ := event["_id"].(string)
	eventType, _ := event["type"].(string)
	if eventID == "" || eventType == "" {
		return nil
	}

	subs, err := m.subscriptions.FindActiveSubscriptions(ctx)
	if err != nil {
		return err
	}

	source, _ := event["source"].(string)
	clientID, _ := event["clientId"].(string)
	messageGroup, _ := event["messageGroup"].(string)
	correlationID, _ := event["correlationId"].(string)
	subject, _ := event["subject"].(string)
	data, _ := event["data"].(string)
	eventTime := extractEventTime(event)
	contextData := extractContextData(event)

	created := 0
	for _, sub := range subs {
		if !sub.MatchesEventCode(eventType) {
			continue
		}
		if sub.ClientID != "" && sub.ClientID != clientID {
			continue
		}

		now := time.Now()
		job := &dispatchjob.DispatchJob{
			Source:             source,
			Kind:               dispatchjob.DispatchKindEvent,
			Code:               eventType,
			Subject:            subject,
			EventID:            eventID,
			CorrelationID:      correlationID,
			TargetURL:          sub.Target,
			Protocol:           dispatchjob.DispatchProtocolHTTPWebhook,
			Payload:            buildPayload(sub.DataOnly, eventID, eventType, source, eventTime, data, correlationID, messageGroup, contextData),
			PayloadContentType: "application/json",
			DataOnly:           sub.DataOnly,
			ServiceAccountID:   sub.ServiceAccountID,
			SigningSecret:      sub.SigningSecret,
			ClientID:           clientID,
			SubscriptionID:     sub.ID,
			Mode:               dispatchjob.DispatchMode(sub.Mode),
			DispatchPoolID:     sub.DispatchPoolID,
			MessageGroup:       messageGroup,
			Sequence:           sub.Sequence,
			TimeoutSeconds:     sub.TimeoutSeconds,
			Status:             dispatchjob.DispatchStatusPending,
			MaxRetries:         sub.MaxRetries,
			CreatedAt:          now,
			UpdatedAt:          now,
		}

		if err := m.dispatchJobs.Insert(ctx, job); err != nil {
			return err
		}
		created++
	}

	if created > 0 {
		slog.Debug("materialized dispatch jobs for event",
			"eventId", eventID, "eventType", eventType, "count", created)
	}

	return nil
}

// buildPayload returns the raw event data when the subscription is
// data_only, or the full envelope otherwise.
func buildPayload(dataOnly bool, eventID, eventType, source string, eventTime time.Time, data, correlationID, messageGroup string, contextData []envelopeContextItem) string {
	if dataOnly {
		return data
	}

	var rawData json.RawMessage
	if data != "" {
		if json.Valid([]byte(data)) {
			rawData = json.RawMessage(data)
		} else if quoted, err := json.Marshal(data); err == nil {
			rawData = quoted
		}
	}

	env := envelope{
		ID:            eventID,
		Type:          eventType,
		Source:        source,
		Time:          eventTime,
		Data:          rawData,
		CorrelationID: correlationID,
		MessageGroup:  messageGroup,
		ContextData:   contextData,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return data
	}
	return string(body)
}

// extractEventTime pulls the event's "time" field out of a change-stream
// document, tolerating both time.Time and primitive.DateTime decodes.
func extractEventTime(event bson.M) time.Time {
	switch t := event["time"].(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	default:
		return time.Now()
	}
}

// extractContextData pulls the event's "contextData" array out of a
// change-stream document into the envelope's wire shape.
func extractContextData(event bson.M) []envelopeContextItem {
	raw, ok := event["contextData"].(bson.A)
	if !ok {
		return nil
	}

	items := make([]envelopeContextItem, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(bson.M)
		if !ok {
			continue
		}
		key, _ := m["key"].(string)
		value, _ := m["value"].(string)
		items = append(items, envelopeContextItem{Key: key, Value: value})
	}
	return items
}
