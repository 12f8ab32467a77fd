// Package mediator delivers dispatch jobs to their subscriber's webhook.
package mediator

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/flowcatalyst-oss/corepipe/internal/common/metrics"
	"github.com/flowcatalyst-oss/corepipe/internal/common/secrets"
	"github.com/flowcatalyst-oss/corepipe/internal/common/tsid"
	"github.com/flowcatalyst-oss/corepipe/internal/common/webhook"
	"github.com/flowcatalyst-oss/corepipe/internal/dispatchjob"
	"github.com/flowcatalyst-oss/corepipe/internal/router/pool"
)

// errTooManyRedirects is returned by the client's CheckRedirect hook once
// the webhook target has redirected more than maxRedirects times.
var errTooManyRedirects = errors.New("stopped after 5 redirects")

const maxRedirects = 5

// backoffBase and backoffCap are the defaults for the jittered exponential
// retry delay: min(backoffCap, backoffBase*2^attempt) * U(0.5, 1.5).
const (
	backoffBase = time.Second
	backoffCap  = 300 * time.Second
)

// defaultWebhookTimeout is used when a job row carries no timeout.
const defaultWebhookTimeout = 30 * time.Second

// HTTPMediator delivers a dispatch job's webhook by fetching the job row
// by ID, signing its payload, and POSTing it straight to the job's
// target_url - the router never re-derives this from the queue message.
type HTTPMediator struct {
	client         *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	jobs           dispatchjob.Repository
	authService    dispatchjob.AuthTokenService
	signer         *webhook.Signer
	secretsProvider secrets.Provider
}

// HTTPVersion represents the HTTP protocol version to use
type HTTPVersion string

const (
	// HTTPVersion1 forces HTTP/1.1
	HTTPVersion1 HTTPVersion = "HTTP_1_1"
	// HTTPVersion2 enables HTTP/2 (default for production)
	HTTPVersion2 HTTPVersion = "HTTP_2"
)

// HTTPMediatorConfig configures the HTTP mediator
type HTTPMediatorConfig struct {
	// Timeout is the ceiling applied when a job row carries no
	// timeout_seconds of its own.
	Timeout time.Duration

	// HTTPVersion controls which HTTP version to use
	// HTTP_2 (default for production) or HTTP_1_1 (recommended for dev)
	HTTPVersion HTTPVersion

	// CircuitBreaker settings
	CircuitBreakerEnabled     bool
	CircuitBreakerRequests    uint32        // Request volume threshold
	CircuitBreakerInterval    time.Duration // Stats window
	CircuitBreakerRatio       float64       // Failure ratio to trip
	CircuitBreakerTimeout     time.Duration // Time in open state before half-open
	CircuitBreakerMinRequests uint32        // Min requests before evaluating ratio
}

// DefaultHTTPMediatorConfig returns sensible defaults for production.
// Uses HTTP/2 by default.
func DefaultHTTPMediatorConfig() *HTTPMediatorConfig {
	return &HTTPMediatorConfig{
		Timeout:                   defaultWebhookTimeout,
		HTTPVersion:               HTTPVersion2,
		CircuitBreakerEnabled:     true,
		CircuitBreakerRequests:    10,
		CircuitBreakerInterval:    60 * time.Second,
		CircuitBreakerRatio:       0.5,
		CircuitBreakerTimeout:     5 * time.Second,
		CircuitBreakerMinRequests: 10,
	}
}

// DevHTTPMediatorConfig returns config suitable for development
// Uses HTTP/1.1
func DevHTTPMediatorConfig() *HTTPMediatorConfig {
	cfg := DefaultHTTPMediatorConfig()
	cfg.HTTPVersion = HTTPVersion1
	return cfg
}

// Deps bundles the mediator's runtime dependencies: the job repository it
// fetches and updates dispatch jobs through, the auth service that
// validates a pointer's token before the job row is ever touched, the
// signer that signs outbound payloads, and the secrets provider it
// resolves service-account bearer tokens through.
type Deps struct {
	Jobs            dispatchjob.Repository
	AuthService     dispatchjob.AuthTokenService
	Signer          *webhook.Signer
	SecretsProvider secrets.Provider
}

// NewHTTPMediator creates a new HTTP mediator.
func NewHTTPMediator(cfg *HTTPMediatorConfig, deps Deps) *HTTPMediator {
	if cfg == nil {
		cfg = DefaultHTTPMediatorConfig()
	}
	signer := deps.Signer
	if signer == nil {
		signer = webhook.NewSigner()
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	if cfg.HTTPVersion == HTTPVersion1 {
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = make(map[string]func(authority string, c *tls.Conn) http.RoundTripper)
		slog.Info("HTTP mediator configured", "version", "HTTP/1.1")
	} else {
		transport.ForceAttemptHTTP2 = true
		slog.Info("HTTP mediator configured", "version", "HTTP/2")
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	mediator := &HTTPMediator{
		client:          client,
		jobs:            deps.Jobs,
		authService:     deps.AuthService,
		signer:          signer,
		secretsProvider: deps.SecretsProvider,
	}

	if cfg.CircuitBreakerEnabled {
		mediator.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "http-mediator",
			MaxRequests: cfg.CircuitBreakerRequests,
			Interval:    cfg.CircuitBreakerInterval,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.CircuitBreakerMinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= cfg.CircuitBreakerRatio
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				slog.Info("Circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String())

				var stateValue float64
				switch to {
				case gobreaker.StateClosed:
					stateValue = float64(metrics.CircuitBreakerClosed)
				case gobreaker.StateOpen:
					stateValue = float64(metrics.CircuitBreakerOpen)
					metrics.MediatorCircuitBreakerTrips.WithLabelValues(name).Inc()
				case gobreaker.StateHalfOpen:
					stateValue = float64(metrics.CircuitBreakerHalfOpen)
				}
				metrics.MediatorCircuitBreakerState.WithLabelValues(name).Set(stateValue)
			},
		})
	}

	return mediator
}

// Process validates the pointer's auth token, fetches the dispatch job row
// by ID, delivers its signed webhook to the job's target_url, and updates
// the job row to reflect the outcome.
func (m *HTTPMediator) Process(msg *pool.MessagePointer) *pool.MediationOutcome {
	if msg == nil {
		return &pool.MediationOutcome{Result: pool.MediationResultErrorPermanent, Error: errors.New("nil message")}
	}

	ctx := context.Background()

	if m.authService != nil && m.authService.IsConfigured() {
		if err := m.authService.ValidateAuthToken(msg.ID, msg.AuthToken); err != nil {
			slog.Warn("dispatch auth token rejected", "messageId", msg.ID, "error", err)
			return &pool.MediationOutcome{Result: pool.MediationResultErrorPermanent, Error: err}
		}
	}

	job, err := m.jobs.FindByID(ctx, msg.ID)
	if err != nil {
		if errors.Is(err, dispatchjob.ErrNotFound) {
			slog.Warn("dispatch job not found, acking", "messageId", msg.ID)
			return &pool.MediationOutcome{Result: pool.MediationResultSuccess}
		}
		return &pool.MediationOutcome{Result: pool.MediationResultErrorProcess, Error: err}
	}

	if job.IsTerminal() {
		return &pool.MediationOutcome{Result: pool.MediationResultSuccess}
	}

	if job.IsExpired() {
		if err := m.jobs.UpdateStatus(ctx, job.ID, dispatchjob.DispatchStatusCancelled); err != nil {
			slog.Error("failed to cancel expired dispatch job", "jobId", job.ID, "error", err)
		}
		return &pool.MediationOutcome{Result: pool.MediationResultSuccess}
	}

	if !job.ScheduledFor.IsZero() && time.Now().Before(job.ScheduledFor) {
		delay := time.Until(job.ScheduledFor)
		return &pool.MediationOutcome{Result: pool.MediationResultErrorDeferred, Delay: &delay}
	}

	if err := m.jobs.MarkInProgress(ctx, job.ID); err != nil {
		slog.Error("failed to mark dispatch job in progress", "jobId", job.ID, "error", err)
	}

	var outcome *pool.MediationOutcome
	if m.circuitBreaker != nil {
		result, cbErr := m.circuitBreaker.Execute(func() (interface{}, error) {
			return m.deliver(ctx, job), nil
		})
		if cbErr != nil {
			if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
				slog.Warn("circuit breaker open", "jobId", job.ID, "target", job.TargetURL)
				delay := backoffWithJitter(job.AttemptCount)
				return &pool.MediationOutcome{Result: pool.MediationResultErrorProcess, Delay: &delay, Error: cbErr}
			}
		}
		outcome, _ = result.(*pool.MediationOutcome)
	} else {
		outcome = m.deliver(ctx, job)
	}

	return outcome
}

// deliver signs and POSTs the job's payload to its target_url, records the
// attempt, and moves the job row to its next state.
func (m *HTTPMediator) deliver(ctx context.Context, job *dispatchjob.DispatchJob) *pool.MediationOutcome {
	attempt := dispatchjob.DispatchAttempt{
		ID:            tsid.Generate(),
		AttemptNumber: job.AttemptCount + 1,
		AttemptedAt:   time.Now(),
		CreatedAt:     time.Now(),
	}

	timeout := time.Duration(job.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, job.TargetURL, strings.NewReader(job.Payload))
	if err != nil {
		attempt.Status = dispatchjob.DispatchAttemptStatusClientError
		attempt.ErrorType = dispatchjob.ErrorTypePermanent
		attempt.ErrorMessage = fmt.Sprintf("failed to create request: %v", err)
		return m.finalize(ctx, job, attempt, pool.MediationResultErrorPermanent, nil)
	}

	contentType := job.PayloadContentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range job.Headers {
		req.Header.Set(k, v)
	}

	signed := m.signer.Sign(job.Payload, job.SigningSecret)
	req.Header.Set(webhook.SignatureHeader, signed.Signature)
	req.Header.Set(webhook.TimestampHeader, signed.Timestamp)

	if job.ServiceAccountID != "" {
		if token, err := m.resolveServiceAccountToken(ctx, job.ServiceAccountID); err != nil {
			slog.Warn("failed to resolve service account token", "jobId", job.ID, "serviceAccountId", job.ServiceAccountID, "error", err)
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	slog.Debug("delivering webhook", "jobId", job.ID, "target", job.TargetURL, "attempt", attempt.AttemptNumber)

	start := time.Now()
	resp, err := m.client.Do(req)
	duration := time.Since(start)
	attempt.CompletedAt = time.Now()
	attempt.DurationMillis = duration.Milliseconds()

	if err != nil {
		metrics.MediatorHTTPRequests.WithLabelValues("error", "POST").Inc()
		return m.handleDeliveryError(ctx, job, attempt, err)
	}
	defer resp.Body.Close()

	metrics.MediatorHTTPDuration.WithLabelValues(job.TargetURL).Observe(duration.Seconds())
	metrics.MediatorHTTPRequests.WithLabelValues(strconv.Itoa(resp.StatusCode), "POST").Inc()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	attempt.ResponseCode = resp.StatusCode
	attempt.ResponseBody = string(body)

	result, retryAfter := classifyStatus(resp.StatusCode, resp.Header)
	switch result {
	case pool.MediationResultSuccess:
		attempt.Status = dispatchjob.DispatchAttemptStatusSuccess
	case pool.MediationResultErrorPermanent:
		attempt.Status = dispatchjob.DispatchAttemptStatusClientError
		attempt.ErrorType = dispatchjob.ErrorTypePermanent
		attempt.ErrorMessage = fmt.Sprintf("webhook returned %d", resp.StatusCode)
	default:
		if resp.StatusCode >= 500 {
			attempt.Status = dispatchjob.DispatchAttemptStatusServerError
		} else {
			attempt.Status = dispatchjob.DispatchAttemptStatusClientError
		}
		attempt.ErrorType = dispatchjob.ErrorTypeTransient
		attempt.ErrorMessage = fmt.Sprintf("webhook returned %d", resp.StatusCode)
	}

	return m.finalize(ctx, job, attempt, result, retryAfter)
}

// handleDeliveryError classifies a transport-level failure: over-limit
// redirects are permanent, everything else (timeout, connection refused,
// DNS failure) is retried with backoff.
func (m *HTTPMediator) handleDeliveryError(ctx context.Context, job *dispatchjob.DispatchJob, attempt dispatchjob.DispatchAttempt, err error) *pool.MediationOutcome {
	attempt.ErrorMessage = err.Error()

	if errors.Is(err, errTooManyRedirects) {
		attempt.Status = dispatchjob.DispatchAttemptStatusClientError
		attempt.ErrorType = dispatchjob.ErrorTypePermanent
		return m.finalize(ctx, job, attempt, pool.MediationResultErrorPermanent, nil)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		attempt.Status = dispatchjob.DispatchAttemptStatusTimeout
	} else {
		attempt.Status = dispatchjob.DispatchAttemptStatusConnectionError
	}
	attempt.ErrorType = dispatchjob.ErrorTypeTransient

	return m.finalize(ctx, job, attempt, pool.MediationResultErrorProcess, nil)
}

// finalize records the delivery attempt and transitions the job row,
// returning the outcome handed back to the work queue.
func (m *HTTPMediator) finalize(ctx context.Context, job *dispatchjob.DispatchJob, attempt dispatchjob.DispatchAttempt, result pool.MediationResult, retryAfter *time.Duration) *pool.MediationOutcome {
	if err := m.jobs.RecordAttempt(ctx, job.ID, attempt); err != nil {
		slog.Error("failed to record dispatch attempt", "jobId", job.ID, "error", err)
	}
	job.AttemptCount++

	switch result {
	case pool.MediationResultSuccess:
		durationMillis := time.Since(job.CreatedAt).Milliseconds()
		if err := m.jobs.MarkCompleted(ctx, job.ID, durationMillis); err != nil {
			slog.Error("failed to mark dispatch job completed", "jobId", job.ID, "error", err)
		}
		return &pool.MediationOutcome{Result: pool.MediationResultSuccess, StatusCode: attempt.ResponseCode}

	case pool.MediationResultErrorPermanent:
		if err := m.jobs.MarkError(ctx, job.ID, attempt.ErrorMessage); err != nil {
			slog.Error("failed to mark dispatch job errored", "jobId", job.ID, "error", err)
		}
		return &pool.MediationOutcome{Result: pool.MediationResultErrorPermanent, StatusCode: attempt.ResponseCode, Error: errors.New(attempt.ErrorMessage)}

	default:
		if !job.CanRetry() {
			if err := m.jobs.MarkError(ctx, job.ID, attempt.ErrorMessage); err != nil {
				slog.Error("failed to mark dispatch job errored", "jobId", job.ID, "error", err)
			}
			return &pool.MediationOutcome{Result: pool.MediationResultErrorPermanent, StatusCode: attempt.ResponseCode, Error: errors.New(attempt.ErrorMessage)}
		}

		delay := retryAfter
		if delay == nil {
			d := backoffWithJitter(job.AttemptCount)
			delay = &d
		}
		if err := m.jobs.ResetToPending(ctx, job.ID, time.Now().Add(*delay)); err != nil {
			slog.Error("failed to reset dispatch job to pending", "jobId", job.ID, "error", err)
		}
		return &pool.MediationOutcome{Result: pool.MediationResultErrorProcess, StatusCode: attempt.ResponseCode, Delay: delay, Error: errors.New(attempt.ErrorMessage)}
	}
}

// resolveServiceAccountToken looks up the bearer token to present to the
// target as Authorization: Bearer <token>, if the service account has one.
func (m *HTTPMediator) resolveServiceAccountToken(ctx context.Context, serviceAccountID string) (string, error) {
	if m.secretsProvider == nil {
		return "", nil
	}
	token, err := m.secretsProvider.Get(ctx, serviceAccountID)
	if errors.Is(err, secrets.ErrSecretNotFound) {
		return "", nil
	}
	return token, err
}

// classifyStatus maps an HTTP response status to a mediation result per
// the delivery contract: 2xx succeeds; 400/401/403/422 and other 4xx fail
// permanently; 408/425/429/5xx are retried with backoff, honouring
// Retry-After when the target sends one.
func classifyStatus(code int, headers http.Header) (pool.MediationResult, *time.Duration) {
	switch {
	case code >= 200 && code < 300:
		return pool.MediationResultSuccess, nil
	case code == http.StatusRequestTimeout || code == http.StatusTooEarly || code == http.StatusTooManyRequests || code >= 500:
		return pool.MediationResultErrorProcess, parseRetryAfter(headers)
	case code >= 400 && code < 500:
		return pool.MediationResultErrorPermanent, nil
	default:
		return pool.MediationResultErrorProcess, nil
	}
}

// parseRetryAfter parses the standard HTTP Retry-After response header,
// which is either a number of seconds or an HTTP-date.
func parseRetryAfter(headers http.Header) *time.Duration {
	v := headers.Get("Retry-After")
	if v == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// backoffWithJitter returns an exponential backoff with +/-50% jitter:
// min(backoffCap, backoffBase*2^attempt) * U(0.5, 1.5).
func backoffWithJitter(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30 // avoid shifting out of range; backoffCap dominates long before this
	}

	exp := backoffBase * time.Duration(1<<uint(attempt))
	if exp <= 0 || exp > backoffCap {
		exp = backoffCap
	}

	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(exp) * jitter)
}
