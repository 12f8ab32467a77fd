package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// APIClient posts batches of outbox items to the FlowCatalyst ingress
// endpoint and returns a per-item outcome for each one.
type APIClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// APIClientConfig holds configuration for the API client
type APIClientConfig struct {
	// BaseURL is the FlowCatalyst API base URL (required)
	BaseURL string

	// AuthToken is the optional Bearer token for authentication
	AuthToken string

	// ConnectionTimeout is the connection timeout
	ConnectionTimeout time.Duration

	// RequestTimeout is the request timeout
	RequestTimeout time.Duration
}

// DefaultAPIClientConfig returns sensible defaults
func DefaultAPIClientConfig() *APIClientConfig {
	return &APIClientConfig{
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

// NewAPIClient creates a new API client
func NewAPIClient(config *APIClientConfig) *APIClient {
	if config == nil {
		config = DefaultAPIClientConfig()
	}

	return &APIClient{
		baseURL:   config.BaseURL,
		authToken: config.AuthToken,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
	}
}

// ingressItem is a single entry in the /ingress/batch request body.
type ingressItem struct {
	ID      string          `json:"id"`
	Type    OutboxItemType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ingressRequest is the /ingress/batch request body. Items in the same
// request share a message group so the receiver can preserve FIFO order
// within the group.
type ingressRequest struct {
	Group string        `json:"group"`
	Items []ingressItem `json:"items"`
}

// ingressItemResult is one entry of the /ingress/batch response.
type ingressItemResult struct {
	ID               string `json:"id"`
	Result           string `json:"result"`
	RetryAfterSeconds *int  `json:"retry_after_seconds,omitempty"`
}

// ingressResponse is the /ingress/batch response body.
type ingressResponse struct {
	Results []ingressItemResult `json:"results"`
}

// SendEventBatch sends a batch of events to the ingress endpoint.
func (c *APIClient) SendEventBatch(ctx context.Context, group string, items []*OutboxItem) (*BatchResult, error) {
	return c.sendBatch(ctx, "/ingress/batch", group, items)
}

// SendDispatchJobBatch sends a batch of dispatch jobs to the ingress endpoint.
func (c *APIClient) SendDispatchJobBatch(ctx context.Context, group string, items []*OutboxItem) (*BatchResult, error) {
	return c.sendBatch(ctx, "/ingress/batch", group, items)
}

// sendBatch posts a batch of items and maps the per-item response back onto
// each outbox item's status, rather than applying one status to the whole
// batch.
func (c *APIClient) sendBatch(ctx context.Context, endpoint, group string, items []*OutboxItem) (*BatchResult, error) {
	if len(items) == 0 {
		return NewBatchResult(), nil
	}

	reqItems := make([]ingressItem, len(items))
	for i, item := range items {
		reqItems[i] = ingressItem{
			ID:      item.ID,
			Type:    item.Type,
			Payload: json.RawMessage(item.Payload),
		}
	}

	body, err := json.Marshal(ingressRequest{Group: group, Items: reqItems})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	slog.Debug("sending batch to ingress", "endpoint", endpoint, "group", group, "batchSize", len(items))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result := NewBatchResult()
		result.Error = err
		for _, item := range items {
			result.FailedItems[item.ID] = StatusInternalError
		}
		return result, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))

	// Connection-level / gateway failure where the ingress endpoint never
	// produced a per-item result: fall back to a single status for the
	// whole batch, since there is nothing else to attribute it to.
	if resp.StatusCode >= 500 || resp.StatusCode == 401 || resp.StatusCode == 403 {
		status := StatusFromHTTPCode(resp.StatusCode)
		slog.Error("ingress batch request failed", "statusCode", resp.StatusCode, "endpoint", endpoint, "response", string(respBody))
		result := NewBatchResult()
		result.Error = fmt.Errorf("ingress returned status %d: %s", resp.StatusCode, string(respBody))
		for _, item := range items {
			result.FailedItems[item.ID] = status
		}
		return result, result.Error
	}

	var parsed ingressResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		result := NewBatchResult()
		result.Error = fmt.Errorf("failed to parse ingress response: %w", err)
		for _, item := range items {
			result.FailedItems[item.ID] = StatusInternalError
		}
		return result, result.Error
	}

	result := NewBatchResult()
	for _, r := range parsed.Results {
		status := ingressResultToStatus(r.Result)
		if status == StatusSuccess {
			result.SuccessIDs = append(result.SuccessIDs, r.ID)
		} else {
			result.FailedItems[r.ID] = status
		}
	}

	slog.Debug("batch sent", "endpoint", endpoint, "group", group, "batchSize", len(items), "succeeded", len(result.SuccessIDs), "failed", len(result.FailedItems))
	return result, nil
}

// ingressResultToStatus maps the ingress endpoint's per-item result string
// to an OutboxStatus.
func ingressResultToStatus(result string) OutboxStatus {
	switch result {
	case "SUCCESS":
		return StatusSuccess
	case "BAD_REQUEST":
		return StatusBadRequest
	case "UNAUTHORIZED":
		return StatusUnauthorized
	case "FORBIDDEN":
		return StatusForbidden
	case "GATEWAY_ERROR":
		return StatusGatewayError
	default:
		return StatusInternalError
	}
}
