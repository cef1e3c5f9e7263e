package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/inkwell-io/inkwell/internal/apierrors"
	"github.com/inkwell-io/inkwell/internal/config"
)

// QuotaEvaluator layers quota enforcement into token validation without
// coupling the validator to storage. Evaluate is invoked exactly once
// per Validate call: with passed=true and the verified claims when all
// token checks succeed, or with passed=false (claims may be nil) so the
// caller can observe the failure. The returned reason becomes the
// overall decision when passed=true; it is ignored otherwise.
type QuotaEvaluator interface {
	Evaluate(ctx context.Context, passed bool, claims *Claims) apierrors.Reason
}

// Decision is the transient result of one authorization attempt.
type Decision struct {
	Allowed bool
	Reason  apierrors.Reason
	Message string
	Claims  *Claims
}

// Validator verifies token signature and claims against the configured
// issuer, audience and secret.
type Validator struct {
	config *config.JWTConfig
}

// NewValidator creates a new token validator
func NewValidator(cfg *config.JWTConfig) *Validator {
	return &Validator{config: cfg}
}

// Validate checks a bearer token against the configured secret, expiry,
// issuer, audience and the caller-supplied client id, then hands the
// verified claims to the evaluator for quota enforcement. Checks
// short-circuit in that order so each failure reports its own reason.
// Validation failures never escape as errors; they are folded into the
// returned decision.
func (v *Validator) Validate(ctx context.Context, tokenString, clientID string, eval QuotaEvaluator) Decision {
	if tokenString == "" || clientID == "" {
		return v.deny(ctx, eval, apierrors.ReasonMalformedToken, nil)
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.config.Secret), nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return v.deny(ctx, eval, apierrors.ReasonMalformedToken, nil)
		}
		return v.deny(ctx, eval, apierrors.ReasonBadSignature, nil)
	}
	if !tok.Valid {
		return v.deny(ctx, eval, apierrors.ReasonBadSignature, nil)
	}

	if claims.ExpiresAt == nil || !time.Now().Before(claims.ExpiresAt.Time) {
		return v.deny(ctx, eval, apierrors.ReasonExpired, claims)
	}
	if claims.Issuer != v.config.Issuer {
		return v.deny(ctx, eval, apierrors.ReasonIssuerMismatch, claims)
	}
	if !containsAudience(claims.Audience, v.config.Audience) {
		return v.deny(ctx, eval, apierrors.ReasonAudienceMismatch, claims)
	}
	if claims.Subject != clientID {
		return v.deny(ctx, eval, apierrors.ReasonSubjectMismatch, claims)
	}

	reason := apierrors.ReasonOK
	if eval != nil {
		reason = eval.Evaluate(ctx, true, claims)
	}
	if reason != apierrors.ReasonOK {
		return Decision{
			Allowed: false,
			Reason:  reason,
			Message: quotaMessage(reason, claims),
			Claims:  claims,
		}
	}

	return Decision{
		Allowed: true,
		Reason:  apierrors.ReasonOK,
		Message: apierrors.ReasonOK.Message(),
		Claims:  claims,
	}
}

// deny invokes the evaluator with passed=false so the caller can keep a
// uniform failure path, then folds the reason into a decision.
func (v *Validator) deny(ctx context.Context, eval QuotaEvaluator, reason apierrors.Reason, claims *Claims) Decision {
	if eval != nil {
		eval.Evaluate(ctx, false, claims)
	}
	return Decision{
		Allowed: false,
		Reason:  reason,
		Message: reason.Message(),
		Claims:  claims,
	}
}

func quotaMessage(reason apierrors.Reason, claims *Claims) string {
	if reason == apierrors.ReasonQuotaExceeded && claims != nil {
		return fmt.Sprintf("Quota exceeded limit: %d", claims.MaxQuota)
	}
	return reason.Message()
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
