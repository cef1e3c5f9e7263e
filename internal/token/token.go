package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/inkwell-io/inkwell/internal/config"
)

// Codec errors
var (
	ErrEmptySubject   = errors.New("token subject must not be empty")
	ErrMalformedToken = errors.New("token is malformed")
)

// Claims represents the payload of an API key token. MaxQuota is the
// usage ceiling embedded at issuance; zero means unlimited.
type Claims struct {
	MaxQuota int64 `json:"maxQuota"`
	jwt.RegisteredClaims
}

// Codec encodes and decodes API key tokens. Encoding signs with
// HMAC-SHA256; decoding parses without verification, which is the
// validator's job.
type Codec struct {
	config *config.JWTConfig
}

// NewCodec creates a new token codec
func NewCodec(cfg *config.JWTConfig) *Codec {
	return &Codec{config: cfg}
}

// Encode builds and signs a token for the given subject. The maxQuota
// claim is carried verbatim; ttl defaults to 30 days when not positive.
func (c *Codec) Encode(subject string, maxQuota int64, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	if maxQuota < 0 {
		return "", fmt.Errorf("maxQuota must not be negative, got %d", maxQuota)
	}
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}

	now := time.Now()
	claims := &Claims{
		MaxQuota: maxQuota,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{c.config.Audience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(c.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode parses a token without verifying the signature or any claim.
// Callers that need a trusted payload must go through the Validator.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrMalformedToken
	}
	return claims, nil
}
