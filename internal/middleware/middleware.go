package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inkwell-io/inkwell/internal/apierrors"
	"github.com/inkwell-io/inkwell/internal/logging"
	"github.com/inkwell-io/inkwell/internal/monitoring"
	"github.com/inkwell-io/inkwell/internal/quota"
	"github.com/inkwell-io/inkwell/internal/token"
	"github.com/rs/zerolog/log"
)

// Context keys for storing authenticated request information
const (
	ContextKeyClientID = "client_id"
	ContextKeyClaims   = "claims"
)

// HeaderClientID carries the caller's identity separately from what
// the token asserts; the two must match.
const HeaderClientID = "X-Api-Client-Id"

// ErrInvalidAuthHeader is returned when the Authorization header does
// not carry a bearer token.
var ErrInvalidAuthHeader = errors.New("invalid authorization header")

// AuthGate guards a route group: it validates the bearer token and
// charges the caller's quota before the handler runs.
type AuthGate struct {
	validator *token.Validator
	ledger    quota.Ledger
}

// NewAuthGate creates an auth gate from a validator and a quota ledger
func NewAuthGate(validator *token.Validator, ledger quota.Ledger) *AuthGate {
	return &AuthGate{validator: validator, ledger: ledger}
}

// Guard returns a middleware that runs once per guarded request,
// before the request's handler. On denial it responds with the
// decision's status and aborts; a storage fault maps to 503 rather
// than being conflated with a quota denial.
func (g *AuthGate) Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		clientID := c.GetHeader(HeaderClientID)

		decision := g.validator.Validate(
			c.Request.Context(),
			tokenString,
			clientID,
			&ledgerEvaluator{ledger: g.ledger},
		)

		requestID := c.GetString("request_id")
		logging.LogAuthDecision(requestID, clientID, string(decision.Reason), decision.Allowed)
		monitoring.RecordAuthDecision(string(decision.Reason), decision.Allowed)

		if !decision.Allowed {
			status := decision.Reason.HTTPStatus()
			c.AbortWithStatusJSON(status, gin.H{
				"status":  status,
				"reason":  decision.Reason,
				"message": "API authentication failed: " + decision.Message,
			})
			return
		}

		c.Set(ContextKeyClientID, clientID)
		c.Set(ContextKeyClaims, decision.Claims)
		c.Next()
	}
}

// ledgerEvaluator adapts the quota ledger to the validator's evaluator
// interface, translating ledger errors into decision reasons.
type ledgerEvaluator struct {
	ledger quota.Ledger
}

func (e *ledgerEvaluator) Evaluate(ctx context.Context, passed bool, claims *token.Claims) apierrors.Reason {
	if !passed || claims == nil {
		// Token checks already failed; nothing to charge.
		return apierrors.ReasonBadSignature
	}

	err := e.ledger.CheckAndIncrement(ctx, claims.Subject, claims.MaxQuota)
	switch {
	case err == nil:
		return apierrors.ReasonOK
	case errors.Is(err, quota.ErrUserNotFound):
		return apierrors.ReasonUserNotFound
	case errors.Is(err, quota.ErrQuotaExceeded):
		return apierrors.ReasonQuotaExceeded
	default:
		log.Error().Err(err).Str("client_id", claims.Subject).Msg("Quota ledger failure")
		return apierrors.ReasonStorageFailure
	}
}

// bearerToken extracts the token from a Bearer authorization header.
// Returns an empty string when the header is absent or not Bearer.
func bearerToken(authHeader string) string {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return authHeader[len(bearerPrefix):]
}

// GetClientIDFromContext extracts the client id from the gin context.
// Returns empty string if not found
func GetClientIDFromContext(c *gin.Context) string {
	clientID, exists := c.Get(ContextKeyClientID)
	if !exists {
		return ""
	}
	return clientID.(string)
}

// GetClaimsFromContext extracts the verified claims from the gin
// context. Returns nil if not found
func GetClaimsFromContext(c *gin.Context) *token.Claims {
	claims, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	return claims.(*token.Claims)
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// CORS configures CORS headers
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, "+HeaderClientID)
			c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
