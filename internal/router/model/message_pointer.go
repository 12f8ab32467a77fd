// Package model provides data structures for the message router
package model

// MediationType defines the type of mediation to perform
type MediationType string

const (
	// MediationTypeHTTP is HTTP-based mediation to external webhooks
	MediationTypeHTTP MediationType = "HTTP"
)

// MessagePointer contains routing and mediation information.
// This record is serialized/deserialized to/from queue messages and contains all
// information needed to route and process a message through the system.
//
// Wire shape for a routable work item. The router fetches the full job
// row by ID rather than carrying the delivery target on the pointer
// itself - MediationTarget/MediationType are informational only.
type MessagePointer struct {
	// ID is the unique message identifier - the dispatch job's ID
	ID string `json:"id"`

	// PoolCode is the processing pool identifier (e.g., "POOL-HIGH", "order-service")
	PoolCode string `json:"poolCode"`

	// AuthToken is the HMAC-SHA256 token the router validates before
	// touching the job row, derived from (job_id, timestamp) and the
	// scheduler's app key.
	AuthToken string `json:"authToken"`

	// MediationType is the type of mediation to perform (HTTP, etc.)
	MediationType MediationType `json:"mediationType"`

	// MediationTarget is the endpoint the scheduler used to enqueue this
	// pointer, kept for diagnostics; delivery goes to the job row's
	// target_url, not this field.
	MediationTarget string `json:"mediationTarget"`

	// MessageGroupID is the optional message group ID for FIFO ordering within business entities.
	// Messages with the same messageGroupId are processed sequentially,
	// while messages with different messageGroupIds are processed concurrently.
	// Examples:
	//   - "order-12345" - All events for this order process in FIFO order
	//   - "user-67890" - All events for this user process in FIFO order
	//   - empty string - Shares the pool's "__DEFAULT__" group with every other ungrouped message, in FIFO order
	MessageGroupID string `json:"messageGroupId"`

	// --- Internal fields (not serialized to queue) ---

	// BatchID is the internal batch identifier (NOT part of external contract, populated during routing).
	// Used to track messages from the same batch for FIFO ordering enforcement.
	BatchID string `json:"-"`

	// SQSMessageID is the AWS SQS internal message ID for pipeline tracking
	SQSMessageID string `json:"-"`
}
