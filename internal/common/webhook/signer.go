// Package webhook signs and verifies outbound webhook deliveries using
// HMAC-SHA256 over the delivery timestamp and body.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	// SignatureHeader carries the hex-encoded HMAC-SHA256 signature.
	SignatureHeader = "X-FlowCatalyst-Signature"

	// TimestampHeader carries the unix-second timestamp the signature was
	// computed over.
	TimestampHeader = "X-FlowCatalyst-Timestamp"

	// DefaultPastTolerance is how far in the past a timestamp may be before
	// a receiver rejects it as stale.
	DefaultPastTolerance = 300 * time.Second

	// DefaultFutureGrace is how far in the future a timestamp may be before
	// a receiver rejects it as not-yet-valid, to absorb clock skew.
	DefaultFutureGrace = 60 * time.Second
)

// SignedRequest holds everything needed to attach signature headers to an
// outbound webhook delivery.
type SignedRequest struct {
	Payload   string
	Signature string
	Timestamp string
}

// Signer generates and verifies HMAC-SHA256 webhook signatures.
//
// The signature is computed over the unix-second timestamp concatenated
// with the raw body, then signed with the subscription's signing secret.
// A receiver reproduces the same computation to verify delivery.
type Signer struct{}

// NewSigner creates a new Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign signs a webhook payload with the given secret, using the current time.
func (s *Signer) Sign(payload, signingSecret string) *SignedRequest {
	return s.signAt(payload, signingSecret, time.Now())
}

func (s *Signer) signAt(payload, signingSecret string, at time.Time) *SignedRequest {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	signature := hmacSHA256Hex(timestamp+payload, signingSecret)

	return &SignedRequest{
		Payload:   payload,
		Signature: signature,
		Timestamp: timestamp,
	}
}

// Verify checks a received signature against the payload, timestamp and
// secret, rejecting timestamps outside [-pastTolerance, +futureGrace] of
// now. Comparison is constant-time.
func (s *Signer) Verify(payload, timestampHeader, signature, signingSecret string) error {
	return s.verifyAt(payload, timestampHeader, signature, signingSecret, time.Now(), DefaultPastTolerance, DefaultFutureGrace)
}

func (s *Signer) verifyAt(payload, timestampHeader, signature, signingSecret string, now time.Time, pastTolerance, futureGrace time.Duration) error {
	unixSeconds, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp header %q: %w", timestampHeader, err)
	}

	ts := time.Unix(unixSeconds, 0)
	age := now.Sub(ts)
	if age > pastTolerance {
		return fmt.Errorf("timestamp too old: %s ago exceeds tolerance of %s", age, pastTolerance)
	}
	if -age > futureGrace {
		return fmt.Errorf("timestamp too far in the future: %s ahead exceeds grace of %s", -age, futureGrace)
	}

	expected := hmacSHA256Hex(timestampHeader+payload, signingSecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func hmacSHA256Hex(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
