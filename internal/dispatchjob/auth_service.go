package dispatchjob

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrAppKeyNotConfigured indicates the app key is not set
	ErrAppKeyNotConfigured = errors.New("app key is not configured")

	// ErrInvalidToken indicates the token validation failed
	ErrInvalidToken = errors.New("invalid auth token")
)

// AuthTokenService generates and validates the dispatch callback auth
// token carried on a MessagePointer. DispatchAuthService (HMAC) is the
// default; JWTAuthService is an opt-in alternate for deployments already
// standardised on JWT-based service-to-service auth.
type AuthTokenService interface {
	GenerateAuthToken(dispatchJobID string) (string, error)
	ValidateAuthToken(dispatchJobID, token string) error
	IsConfigured() bool
}

// DispatchAuthService generates and validates HMAC-SHA256 auth tokens for dispatch job processing.
//
// This implements the authentication flow between the platform and message router:
//  1. Platform creates a dispatch job and generates an HMAC token using the app key
//  2. Platform sends the job to SQS with the token in the MessagePointer
//  3. Message router receives the message and calls back to platform with the same token
//  4. Platform validates the token by re-computing the HMAC and comparing
//
// The token is computed as: HMAC-SHA256(dispatchJobId, appKey)
type DispatchAuthService struct {
	appKey string
	logger *slog.Logger
}

// NewDispatchAuthService creates a new dispatch auth service
func NewDispatchAuthService(appKey string, logger *slog.Logger) *DispatchAuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchAuthService{
		appKey: appKey,
		logger: logger,
	}
}

// GenerateAuthToken generates an HMAC-SHA256 auth token for a dispatch job ID.
// Returns the hex-encoded HMAC-SHA256 token.
func (s *DispatchAuthService) GenerateAuthToken(dispatchJobID string) (string, error) {
	if s.appKey == "" {
		return "", ErrAppKeyNotConfigured
	}

	return s.hmacSHA256Hex(dispatchJobID, s.appKey), nil
}

// ValidateAuthToken validates an auth token from the message router.
// Returns nil if valid, ErrInvalidToken if invalid.
func (s *DispatchAuthService) ValidateAuthToken(dispatchJobID, token string) error {
	if token == "" || dispatchJobID == "" {
		return ErrInvalidToken
	}

	if s.appKey == "" {
		s.logger.Error("app key is not configured, cannot validate auth token")
		return ErrAppKeyNotConfigured
	}

	expected, err := s.GenerateAuthToken(dispatchJobID)
	if err != nil {
		return err
	}

	// Use constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
		return ErrInvalidToken
	}

	return nil
}

// IsConfigured returns true if the app key is configured
func (s *DispatchAuthService) IsConfigured() bool {
	return s.appKey != ""
}

// hmacSHA256Hex computes HMAC-SHA256 and returns hex-encoded result (lowercase)
func (s *DispatchAuthService) hmacSHA256Hex(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	hash := mac.Sum(nil)
	return hex.EncodeToString(hash)
}

// JWTAuthTokenTTL bounds how long a dispatch callback token remains valid.
// Generous relative to the visibility timeout so a redelivered message
// still carries a usable token.
const JWTAuthTokenTTL = 24 * time.Hour

// JWTAuthService is the opt-in JWT variant of the dispatch auth token,
// selected via FC_SCHEDULER_AUTH_MODE=jwt. It signs a short claim set
// binding the token to a single dispatch job ID with HS256, using the
// same app key the HMAC variant uses as its shared secret.
type JWTAuthService struct {
	appKey string
	logger *slog.Logger
}

// NewJWTAuthService creates a new JWT-backed dispatch auth service.
func NewJWTAuthService(appKey string, logger *slog.Logger) *JWTAuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTAuthService{appKey: appKey, logger: logger}
}

type dispatchClaims struct {
	jwt.RegisteredClaims
}

// GenerateAuthToken signs a JWT whose subject is the dispatch job ID.
func (s *JWTAuthService) GenerateAuthToken(dispatchJobID string) (string, error) {
	if s.appKey == "" {
		return "", ErrAppKeyNotConfigured
	}

	now := time.Now()
	claims := dispatchClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   dispatchJobID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(JWTAuthTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.appKey))
}

// ValidateAuthToken verifies the token's signature, expiry, and that its
// subject matches dispatchJobID.
func (s *JWTAuthService) ValidateAuthToken(dispatchJobID, token string) error {
	if token == "" || dispatchJobID == "" {
		return ErrInvalidToken
	}

	if s.appKey == "" {
		s.logger.Error("app key is not configured, cannot validate auth token")
		return ErrAppKeyNotConfigured
	}

	claims := &dispatchClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.appKey), nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}

	if claims.Subject != dispatchJobID {
		return ErrInvalidToken
	}

	return nil
}

// IsConfigured returns true if the app key is configured
func (s *JWTAuthService) IsConfigured() bool {
	return s.appKey != ""
}
