package approval

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the approval facts carried inside a signed approval token.
// The token is what the executor "spends": its signature and plan-hash claim
// are verified before any approval-scoped write fires.
type Claims struct {
	PlanHash   string `json:"plan_hash"`
	ApprovedBy string `json:"approved_by"`
	jwt.RegisteredClaims
}

// IssueToken materializes a record as an EdDSA-signed JWT. The token expires
// after ttl; an expired approval must be re-granted, not silently reused.
func IssueToken(priv ed25519.PrivateKey, rec *Record, ttl time.Duration) (string, error) {
	claims := Claims{
		PlanHash:   rec.PlanHash,
		ApprovedBy: rec.ApprovedBy,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.ExecutionID,
			IssuedAt:  jwt.NewNumericDate(rec.ApprovedAt),
			ExpiresAt: jwt.NewNumericDate(rec.ApprovedAt.Add(ttl)),
			Issuer:    "sentinel",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("approval: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks signature, expiry, and the plan-hash binding. Any
// mismatch means the approval cannot be spent on the plan at hand.
func VerifyToken(pub ed25519.PublicKey, tokenString, executionID, planHash string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("approval: unexpected signing method %v", t.Header["alg"])
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("approval: token invalid: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("approval: token rejected")
	}
	if claims.Subject != executionID {
		return nil, fmt.Errorf("approval: token was issued for execution %s", claims.Subject)
	}
	if claims.PlanHash != planHash {
		return nil, ErrPlanHashMismatch
	}
	return &claims, nil
}
