package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowcatalyst-oss/corepipe/internal/dispatchjob"
	"github.com/flowcatalyst-oss/corepipe/internal/router/mediator"
	"github.com/flowcatalyst-oss/corepipe/internal/router/pool"
)

// integrationJobRepository is an in-memory dispatchjob.Repository backing
// these end-to-end pool+mediator tests.
type integrationJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*dispatchjob.DispatchJob
}

func newIntegrationJobRepository() *integrationJobRepository {
	return &integrationJobRepository{jobs: make(map[string]*dispatchjob.DispatchJob)}
}

func (r *integrationJobRepository) put(job *dispatchjob.DispatchJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

func (r *integrationJobRepository) FindByID(ctx context.Context, id string) (*dispatchjob.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, dispatchjob.ErrNotFound
	}
	clone := *job
	return &clone, nil
}
func (r *integrationJobRepository) FindByIdempotencyKey(ctx context.Context, key string) (*dispatchjob.DispatchJob, error) {
	return nil, dispatchjob.ErrNotFound
}
func (r *integrationJobRepository) FindByEventID(ctx context.Context, eventID string) ([]*dispatchjob.DispatchJob, error) {
	return nil, nil
}
func (r *integrationJobRepository) FindBySubscription(ctx context.Context, subscriptionID string, skip, limit int64) ([]*dispatchjob.DispatchJob, error) {
	return nil, nil
}
func (r *integrationJobRepository) FindPending(ctx context.Context, limit int64) ([]*dispatchjob.DispatchJob, error) {
	return nil, nil
}
func (r *integrationJobRepository) FindPendingByPool(ctx context.Context, poolID string, limit int64) ([]*dispatchjob.DispatchJob, error) {
	return nil, nil
}
func (r *integrationJobRepository) FindStaleQueued(ctx context.Context, threshold time.Duration) ([]*dispatchjob.DispatchJob, error) {
	return nil, nil
}
func (r *integrationJobRepository) Insert(ctx context.Context, job *dispatchjob.DispatchJob) error {
	r.put(job)
	return nil
}
func (r *integrationJobRepository) InsertMany(ctx context.Context, jobs []*dispatchjob.DispatchJob) error {
	return nil
}
func (r *integrationJobRepository) Update(ctx context.Context, job *dispatchjob.DispatchJob) error {
	r.put(job)
	return nil
}
func (r *integrationJobRepository) UpdateStatus(ctx context.Context, id string, status dispatchjob.DispatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.Status = status
	}
	return nil
}
func (r *integrationJobRepository) MarkQueued(ctx context.Context, id string) error {
	return r.UpdateStatus(ctx, id, dispatchjob.DispatchStatusQueued)
}
func (r *integrationJobRepository) MarkInProgress(ctx context.Context, id string) error {
	return r.UpdateStatus(ctx, id, dispatchjob.DispatchStatusInProgress)
}
func (r *integrationJobRepository) MarkCompleted(ctx context.Context, id string, durationMillis int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.Status = dispatchjob.DispatchStatusCompleted
		job.DurationMillis = durationMillis
	}
	return nil
}
func (r *integrationJobRepository) MarkError(ctx context.Context, id string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.Status = dispatchjob.DispatchStatusError
		job.LastError = errorMsg
	}
	return nil
}
func (r *integrationJobRepository) RecordAttempt(ctx context.Context, id string, attempt dispatchjob.DispatchAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.Attempts = append(job.Attempts, attempt)
		job.AttemptCount++
	}
	return nil
}
func (r *integrationJobRepository) ResetToPending(ctx context.Context, id string, scheduledFor time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.Status = dispatchjob.DispatchStatusPending
		job.ScheduledFor = scheduledFor
	}
	return nil
}
func (r *integrationJobRepository) CountByStatus(ctx context.Context, status dispatchjob.DispatchStatus) (int64, error) {
	return 0, nil
}
func (r *integrationJobRepository) CountByGroupAndStatus(ctx context.Context, messageGroup string, status dispatchjob.DispatchStatus) (int64, error) {
	return 0, nil
}
func (r *integrationJobRepository) HasErrorJobsInGroup(ctx context.Context, messageGroup string) (bool, error) {
	return false, nil
}
func (r *integrationJobRepository) GetBlockedMessageGroups(ctx context.Context, groups []string) (map[string]bool, error) {
	return nil, nil
}
func (r *integrationJobRepository) Delete(ctx context.Context, id string) error { return nil }

func (r *integrationJobRepository) status(id string) dispatchjob.DispatchStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		return job.Status
	}
	return ""
}

func newIntegrationJob(id, targetURL string) *dispatchjob.DispatchJob {
	return &dispatchjob.DispatchJob{
		ID:                 id,
		TargetURL:          targetURL,
		Protocol:           dispatchjob.DispatchProtocolHTTPWebhook,
		Payload:            `{"event": "test"}`,
		PayloadContentType: "application/json",
		Status:             dispatchjob.DispatchStatusPending,
		MaxRetries:         3,
		CreatedAt:          time.Now(),
	}
}

// createTestMediator creates an HTTP mediator with a custom timeout, backed
// by repo, for testing.
func createTestMediator(timeoutMs int, repo dispatchjob.Repository) *mediator.HTTPMediator {
	cfg := &mediator.HTTPMediatorConfig{
		Timeout: time.Duration(timeoutMs) * time.Millisecond,
	}
	return mediator.NewHTTPMediator(cfg, mediator.Deps{Jobs: repo})
}

// === Integration Test Helpers ===

// TestCallback tracks message ack/nack for verification
type TestCallback struct {
	acked    sync.Map
	nacked   sync.Map
	ackMu    sync.Mutex
	nackMu   sync.Mutex
	ackList  []string
	nackList []string
}

func NewTestCallback() *TestCallback {
	return &TestCallback{
		ackList:  make([]string, 0),
		nackList: make([]string, 0),
	}
}

func (c *TestCallback) Ack(msg *pool.MessagePointer) {
	c.acked.Store(msg.ID, msg)
	c.ackMu.Lock()
	c.ackList = append(c.ackList, msg.ID)
	c.ackMu.Unlock()
}

func (c *TestCallback) Nack(msg *pool.MessagePointer) {
	c.nacked.Store(msg.ID, msg)
	c.nackMu.Lock()
	c.nackList = append(c.nackList, msg.ID)
	c.nackMu.Unlock()
}

func (c *TestCallback) SetVisibilityDelay(msg *pool.MessagePointer, seconds int) {}
func (c *TestCallback) SetFastFailVisibility(msg *pool.MessagePointer)           {}
func (c *TestCallback) ResetVisibilityToDefault(msg *pool.MessagePointer)       {}
func (c *TestCallback) Defer(msg *pool.MessagePointer, delay time.Duration)     {}

func (c *TestCallback) IsAcked(id string) bool {
	_, ok := c.acked.Load(id)
	return ok
}

func (c *TestCallback) IsNacked(id string) bool {
	_, ok := c.nacked.Load(id)
	return ok
}

func (c *TestCallback) GetAckCount() int {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()
	return len(c.ackList)
}

func (c *TestCallback) GetNackCount() int {
	c.nackMu.Lock()
	defer c.nackMu.Unlock()
	return len(c.nackList)
}

// === HTTP Response Tests ===

func TestHttpMediator_SuccessResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	repo.put(newIntegrationJob("msg-success", server.URL))
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	msg := &pool.MessagePointer{ID: "msg-success", MessageGroupID: "group-1"}

	processPool.Submit(msg)
	time.Sleep(200 * time.Millisecond)

	if !callback.IsAcked("msg-success") {
		t.Error("Expected message to be ACKed on 200 response")
	}
	if repo.status("msg-success") != dispatchjob.DispatchStatusCompleted {
		t.Errorf("Expected job row COMPLETED, got %v", repo.status("msg-success"))
	}
}

func TestHttpMediator_ServerError500(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	repo.put(newIntegrationJob("msg-500", server.URL))
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	msg := &pool.MessagePointer{ID: "msg-500", MessageGroupID: "group-1"}

	processPool.Submit(msg)
	time.Sleep(200 * time.Millisecond)

	if !callback.IsNacked("msg-500") {
		t.Error("Expected message to be NACKed on 500 response")
	}
	if repo.status("msg-500") != dispatchjob.DispatchStatusPending {
		t.Errorf("Expected job row reset to PENDING for retry, got %v", repo.status("msg-500"))
	}
}

func TestHttpMediator_ServerError503(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	repo.put(newIntegrationJob("msg-503", server.URL))
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	msg := &pool.MessagePointer{ID: "msg-503", MessageGroupID: "group-1"}

	processPool.Submit(msg)
	time.Sleep(200 * time.Millisecond)

	if !callback.IsNacked("msg-503") {
		t.Error("Expected message to be NACKed on 503 response")
	}
}

func TestHttpMediator_ClientError400(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	repo.put(newIntegrationJob("msg-400", server.URL))
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	msg := &pool.MessagePointer{ID: "msg-400", MessageGroupID: "group-1"}

	processPool.Submit(msg)
	time.Sleep(200 * time.Millisecond)

	// 400 is a permanent error: the queue message is ACKed, the job row ERRORed.
	if !callback.IsAcked("msg-400") {
		t.Error("Expected message to be ACKed on 400 response (permanent error)")
	}
	if repo.status("msg-400") != dispatchjob.DispatchStatusError {
		t.Errorf("Expected job row ERROR, got %v", repo.status("msg-400"))
	}
}

func TestHttpMediator_ClientError404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	repo.put(newIntegrationJob("msg-404", server.URL))
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	msg := &pool.MessagePointer{ID: "msg-404", MessageGroupID: "group-1"}

	processPool.Submit(msg)
	time.Sleep(200 * time.Millisecond)

	if !callback.IsAcked("msg-404") {
		t.Error("Expected message to be ACKed on 404 response (permanent error)")
	}
}

// === Timeout Tests ===

func TestHttpMediator_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping timeout test in short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	repo.put(newIntegrationJob("msg-timeout", server.URL))
	med := createTestMediator(1000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	msg := &pool.MessagePointer{ID: "msg-timeout", MessageGroupID: "group-1"}

	processPool.Submit(msg)
	time.Sleep(2 * time.Second)

	if !callback.IsNacked("msg-timeout") {
		t.Error("Expected message to be NACKed on timeout")
	}
}

// === Batch Processing Tests ===

func TestBatchProcessing_AllSuccess(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	batchSize := 10
	for i := 0; i < batchSize; i++ {
		repo.put(newIntegrationJob(fmt.Sprintf("batch-msg-%d", i), server.URL))
	}
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	for i := 0; i < batchSize; i++ {
		msg := &pool.MessagePointer{
			ID:             fmt.Sprintf("batch-msg-%d", i),
			MessageGroupID: fmt.Sprintf("group-%d", i), // Different groups for parallel processing
		}
		processPool.Submit(msg)
	}

	time.Sleep(500 * time.Millisecond)

	if callback.GetAckCount() != batchSize {
		t.Errorf("Expected %d acks, got %d", batchSize, callback.GetAckCount())
	}

	if int(requestCount.Load()) != batchSize {
		t.Errorf("Expected %d HTTP requests, got %d", batchSize, requestCount.Load())
	}
}

func TestBatchProcessing_MixedResults(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		// Every 3rd request fails
		if count%3 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	batchSize := 9
	for i := 0; i < batchSize; i++ {
		repo.put(newIntegrationJob(fmt.Sprintf("mixed-msg-%d", i), server.URL))
	}
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	for i := 0; i < batchSize; i++ {
		msg := &pool.MessagePointer{
			ID:             fmt.Sprintf("mixed-msg-%d", i),
			MessageGroupID: fmt.Sprintf("group-%d", i),
		}
		processPool.Submit(msg)
	}

	time.Sleep(500 * time.Millisecond)

	ackCount := callback.GetAckCount()
	nackCount := callback.GetNackCount()

	if ackCount+nackCount != batchSize {
		t.Errorf("Expected %d total handled messages, got %d (ack=%d, nack=%d)",
			batchSize, ackCount+nackCount, ackCount, nackCount)
	}

	if nackCount == 0 {
		t.Error("Expected some NACKs for failed requests")
	}
}

// === FIFO Ordering Tests ===

func TestFIFOOrdering_SameGroup(t *testing.T) {
	var processOrder []string
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope map[string]interface{}
		json.NewDecoder(r.Body).Decode(&envelope)

		mu.Lock()
		if id, ok := envelope["id"].(string); ok {
			processOrder = append(processOrder, id)
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond) // Simulate processing
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("fifo-%d", i)
		job := newIntegrationJob(id, server.URL)
		job.Payload = fmt.Sprintf(`{"id": "%s"}`, id)
		repo.put(job)
	}
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	// Single worker to enforce strict ordering
	processPool := pool.NewProcessPool("test-pool", 1, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	sameGroup := "fifo-group"
	for i := 0; i < 5; i++ {
		msg := &pool.MessagePointer{
			ID:             fmt.Sprintf("fifo-%d", i),
			MessageGroupID: sameGroup,
		}
		processPool.Submit(msg)
	}

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	expected := []string{"fifo-0", "fifo-1", "fifo-2", "fifo-3", "fifo-4"}
	if len(processOrder) != len(expected) {
		t.Fatalf("Expected %d messages processed, got %d", len(expected), len(processOrder))
	}

	for i, id := range expected {
		if processOrder[i] != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, processOrder[i])
		}
	}
}

// === Concurrency Tests ===

func TestConcurrency_ParallelProcessing(t *testing.T) {
	var processingCount atomic.Int32
	var maxConcurrent atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := processingCount.Add(1)

		for {
			max := maxConcurrent.Load()
			if current <= max || maxConcurrent.CompareAndSwap(max, current) {
				break
			}
		}

		time.Sleep(50 * time.Millisecond) // Simulate work
		processingCount.Add(-1)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	for i := 0; i < 20; i++ {
		repo.put(newIntegrationJob(fmt.Sprintf("concurrent-%d", i), server.URL))
	}
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	concurrency := 5
	processPool := pool.NewProcessPool("test-pool", concurrency, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	for i := 0; i < 20; i++ {
		msg := &pool.MessagePointer{
			ID:             fmt.Sprintf("concurrent-%d", i),
			MessageGroupID: fmt.Sprintf("group-%d", i), // Different group each
		}
		processPool.Submit(msg)
	}

	time.Sleep(1 * time.Second)

	if maxConcurrent.Load() > int32(concurrency) {
		t.Errorf("Max concurrent %d exceeded concurrency limit %d",
			maxConcurrent.Load(), concurrency)
	}

	if callback.GetAckCount() != 20 {
		t.Errorf("Expected 20 acks, got %d", callback.GetAckCount())
	}
}

// === Recovery Tests ===

func TestRecovery_TransientFailure(t *testing.T) {
	var requestCount atomic.Int32
	failFirst := true // Fail first request only
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		mu.Lock()
		shouldFail := failFirst
		mu.Unlock()

		if shouldFail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	repo.put(newIntegrationJob("transient-1", server.URL))
	repo.put(newIntegrationJob("transient-2", server.URL))
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	// First message will fail (server is in "failing" state)
	msg1 := &pool.MessagePointer{ID: "transient-1", MessageGroupID: "group-1"}
	processPool.Submit(msg1)
	time.Sleep(200 * time.Millisecond)

	if !callback.IsNacked("transient-1") {
		t.Error("Expected first message to be NACKed")
	}

	// "Recover" the server
	mu.Lock()
	failFirst = false
	mu.Unlock()

	// New message after recovery should succeed
	msg2 := &pool.MessagePointer{ID: "transient-2", MessageGroupID: "group-2"}
	processPool.Submit(msg2)
	time.Sleep(200 * time.Millisecond)

	if !callback.IsAcked("transient-2") {
		t.Error("Expected second message to be ACKed after recovery")
	}

	if requestCount.Load() < 2 {
		t.Errorf("Expected at least 2 requests, got %d", requestCount.Load())
	}
}

// === Queue Capacity Tests ===

func TestQueueCapacity_Overflow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond) // Slow processing
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	for i := 0; i < 20; i++ {
		repo.put(newIntegrationJob(fmt.Sprintf("overflow-%d", i), server.URL))
	}
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	// Small queue capacity
	queueCapacity := 5
	processPool := pool.NewProcessPool("test-pool", 1, queueCapacity, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	acceptedCount := 0
	rejectedCount := 0

	for i := 0; i < 20; i++ {
		msg := &pool.MessagePointer{
			ID:             fmt.Sprintf("overflow-%d", i),
			MessageGroupID: fmt.Sprintf("group-%d", i),
		}
		if processPool.Submit(msg) {
			acceptedCount++
		} else {
			rejectedCount++
		}
	}

	if rejectedCount == 0 {
		t.Log("Warning: No messages were rejected (queue may have more capacity)")
	}

	time.Sleep(3 * time.Second)

	totalHandled := callback.GetAckCount() + callback.GetNackCount()
	if totalHandled != acceptedCount {
		t.Logf("Expected %d handled messages, got %d", acceptedCount, totalHandled)
	}
}

// === Rate Limiting Tests ===

func TestRateLimiting_EnforcesLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping rate limit test in short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	burstSize := 5
	for i := 0; i < burstSize; i++ {
		repo.put(newIntegrationJob(fmt.Sprintf("rate-%d", i), server.URL))
	}
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	// 600 per minute = 10 per second
	rateLimit := 600
	processPool := pool.NewProcessPool("test-pool", 10, 100, &rateLimit, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	for i := 0; i < burstSize; i++ {
		msg := &pool.MessagePointer{
			ID:             fmt.Sprintf("rate-%d", i),
			MessageGroupID: fmt.Sprintf("group-%d", i),
		}
		processPool.Submit(msg)
	}

	time.Sleep(1 * time.Second)

	if callback.GetAckCount() < burstSize {
		t.Logf("Processed %d/%d messages with rate limiting",
			callback.GetAckCount(), burstSize)
	}
}

// === Headers Tests ===

func TestHttpMediator_CustomHeaders(t *testing.T) {
	var receivedHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	job := newIntegrationJob("msg-headers", server.URL)
	job.Headers = map[string]string{
		"X-Custom-Header": "custom-value",
	}
	repo.put(job)
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("test-pool", 5, 100, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	msg := &pool.MessagePointer{ID: "msg-headers", MessageGroupID: "group-1"}

	processPool.Submit(msg)
	time.Sleep(200 * time.Millisecond)

	if callback.GetAckCount() != 1 {
		t.Errorf("Expected 1 ack, got %d", callback.GetAckCount())
	}

	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type header, got %s", receivedHeaders.Get("Content-Type"))
	}
	if receivedHeaders.Get("X-Custom-Header") != "custom-value" {
		t.Errorf("Expected custom job header to be forwarded, got %s", receivedHeaders.Get("X-Custom-Header"))
	}
	if receivedHeaders.Get("X-FlowCatalyst-Signature") == "" {
		t.Error("Expected webhook signature header to be set")
	}
}

// === Benchmark Tests ===

func BenchmarkEndToEndMessage(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newIntegrationJobRepository()
	for i := 0; i < b.N; i++ {
		repo.put(newIntegrationJob(fmt.Sprintf("bench-%d", i), server.URL))
	}
	med := createTestMediator(5000, repo)
	callback := NewTestCallback()

	processPool := pool.NewProcessPool("bench-pool", 10, 1000, nil, med, callback)
	processPool.Start()
	defer processPool.Shutdown()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg := &pool.MessagePointer{
			ID:             fmt.Sprintf("bench-%d", i),
			MessageGroupID: fmt.Sprintf("group-%d", i%10),
		}
		processPool.Submit(msg)
	}

	time.Sleep(time.Duration(b.N/100+1) * time.Millisecond)
}
