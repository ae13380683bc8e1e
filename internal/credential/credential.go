// Package credential mints and checks the signed session tokens handed out
// after a successful settlement. Tokens are self-contained HS256 JWTs; the
// server keeps no session state and no revocation list, so a token stays
// usable until its 24-hour expiry.
package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL is the fixed credential lifetime.
const TTL = 24 * time.Hour

// Claims is the deterministic claim shape embedded in every credential.
type Claims struct {
	Resource     string `json:"resource"`
	Paid         bool   `json:"paid"`
	Timestamp    string `json:"timestamp"`
	Price        string `json:"price"`
	SettlementID string `json:"settlementId"`
	jwt.RegisteredClaims
}

// Service issues and verifies credentials with a shared signing secret.
type Service struct {
	secret []byte
	now    func() time.Time
}

// New returns a Service signing with secret.
func New(secret string) *Service {
	return &Service{secret: []byte(secret), now: time.Now}
}

// Issue mints a credential bound to the given resource origin, carrying the
// price and settlement identifier at issuance time.
func (s *Service) Issue(resource, price, settlementID string) (string, error) {
	now := s.now()
	claims := Claims{
		Resource:     resource,
		Paid:         true,
		Timestamp:    now.UTC().Format(time.RFC3339),
		Price:        price,
		SettlementID: settlementID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// TryVerify returns the claims carried by token, or nil. It never fails:
// missing, malformed, expired, and mis-signed tokens are all indistinguishable
// from "no token". Callers that must block on a missing credential do so
// explicitly on the nil result.
func (s *Service) TryVerify(token string) *Claims {
	if token == "" {
		return nil
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil
	}
	return claims
}
