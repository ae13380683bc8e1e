package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/porus-labs/porus/internal/credential"
	"github.com/porus-labs/porus/internal/registry"
	"github.com/porus-labs/porus/internal/settlement"
	"github.com/porus-labs/porus/internal/x402"
)

const (
	cookieName   = "access_token"
	cookieMaxAge = 24 * 60 * 60

	ctxRequestID = "porus.requestID"
	ctxClaims    = "porus.claims"
	ctxSettled   = "porus.settled"
)

// checkAuthToken is the non-blocking credential check: it records valid claims
// on the request context and otherwise does nothing. Verification failures are
// indistinguishable from an absent token; blocking is left to the explicit
// gates downstream.
func (s *Server) checkAuthToken(c *gin.Context) {
	token, _ := c.Cookie(cookieName)
	if token == "" {
		if auth := c.GetHeader("Authorization"); auth != "" {
			if _, bearer, ok := strings.Cut(auth, " "); ok {
				token = bearer
			}
		}
	}
	if claims := s.credentials.TryVerify(token); claims != nil {
		c.Set(ctxClaims, claims)
	}
	c.Next()
}

func claimsFrom(c *gin.Context) *credential.Claims {
	if v, ok := c.Get(ctxClaims); ok {
		return v.(*credential.Claims)
	}
	return nil
}

// requireAuth is the blocking gate for credential-only routes.
func (s *Server) requireAuth(c *gin.Context) {
	if claimsFrom(c) == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Valid access token required"})
		return
	}
	c.Next()
}

// paymentAssertion is the caller-supplied (payload, requirements) pair.
// Both halves must be present for the assertion to count.
type paymentAssertion struct {
	PaymentPayload      *x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *x402.PaymentRequirements `json:"paymentRequirements"`
}

// authOrPayment is the authorization state machine. Absent or unparsable
// origin information fails open: the request simply cannot be protected.
func (s *Server) authOrPayment(c *gin.Context) {
	origin := callerOrigin(c.Request)
	if origin == "" {
		c.Next()
		return
	}

	res, err := s.registry.Get(c.Request.Context(), origin)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			s.log.Error("registry lookup failed", "id", requestID(c), "origin", origin, "error", err)
		}
		c.Next()
		return
	}
	// a disabled resource reads the same as an unregistered one
	if !res.Enabled {
		c.Next()
		return
	}

	if claims := claimsFrom(c); claims != nil && claims.Resource == origin {
		c.Next()
		return
	}

	assertion := extractAssertion(c)
	if assertion == nil {
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":               "Payment Required",
			"paymentRequirements": s.requirementsFor(res, c.Request),
		})
		return
	}

	// an in-flight settlement is never cancelled by the caller going away;
	// the client's own timeout bounds the call
	result, err := s.settler.Settle(context.WithoutCancel(c.Request.Context()), *assertion.PaymentPayload, *assertion.PaymentRequirements)
	if err != nil {
		var fe *settlement.FacilitatorError
		if errors.As(err, &fe) {
			c.AbortWithStatusJSON(fe.StatusCode, gin.H{"error": fe.Message})
			return
		}
		s.log.Error("settlement call failed", "id", requestID(c), "origin", origin, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !result.Success {
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "Payment settlement failed"})
		return
	}

	token, err := s.credentials.Issue(origin, res.Price, result.SettlementID())
	if err != nil {
		s.log.Error("credential issuance failed", "id", requestID(c), "origin", origin, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	s.setCredentialCookie(c, token)
	s.log.Info("credential issued after settlement",
		"id", requestID(c),
		"origin", origin,
		"settlementId", result.SettlementID())

	if claims := s.credentials.TryVerify(token); claims != nil {
		c.Set(ctxClaims, claims)
	}
	c.Set(ctxSettled, true)
	c.Next()
}

func (s *Server) setCredentialCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCredentialCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// callerOrigin derives the canonical calling origin from the Origin header,
// falling back to Referer. Empty means the request cannot be attributed to a
// site and protection does not apply.
func callerOrigin(r *http.Request) string {
	raw := r.Header.Get("Origin")
	if raw == "" {
		raw = r.Header.Get("Referer")
	}
	if raw == "" {
		return ""
	}
	origin, err := registry.CanonicalOrigin(raw)
	if err != nil {
		return ""
	}
	return origin
}

// extractAssertion peeks the JSON body for a payment assertion, restoring the
// body for downstream handlers.
func extractAssertion(c *gin.Context) *paymentAssertion {
	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return nil
	}
	var assertion paymentAssertion
	if err := json.Unmarshal(body, &assertion); err != nil {
		return nil
	}
	if assertion.PaymentPayload == nil || assertion.PaymentRequirements == nil {
		return nil
	}
	return &assertion
}

// requirementsFor describes exactly what payment would satisfy this resource.
func (s *Server) requirementsFor(res registry.Resource, r *http.Request) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           res.Network,
		MaxAmountRequired: maxAmountRequired,
		Resource:          "https://" + r.Host + r.URL.Path,
		Description:       res.Description,
		MimeType:          "application/json",
		PayTo:             res.WalletAddress,
		MaxTimeoutSeconds: maxTimeoutSeconds,
		Asset:             x402.AssetForNetwork(res.Network),
	}
}
