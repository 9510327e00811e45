package token

import (
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the signed payload. Expiry lives in a private claim so the
// JWT parser never rejects an expired token on its own; callers decide.
type sessionClaims struct {
	Issued  *time.Time `json:"issued"`
	Expires *time.Time `json:"expires"`
	UserID  *string    `json:"userid"`
}

func (sessionClaims) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }
func (sessionClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (sessionClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (sessionClaims) GetIssuer() (string, error)                   { return "", nil }
func (sessionClaims) GetSubject() (string, error)                  { return "", nil }
func (sessionClaims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// Issue signs a session payload for userID with HMAC-SHA256.
func Issue(userID string, issuedAt, expiresAt time.Time, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", customErrors.NewInvalidArgument("signing secret is required")
	}
	claims := sessionClaims{
		Issued:  &issuedAt,
		Expires: &expiresAt,
		UserID:  &userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", customErrors.WrapInternal(err, "sign session token")
	}
	return signed, nil
}

// Decode verifies raw against secret and returns its payload. Every failure,
// including a missing payload field, is reported as ErrInvalidToken.
func Decode(raw string, secret []byte) (model.SessionPayload, error) {
	if raw == "" || len(secret) == 0 {
		return model.SessionPayload{}, customErrors.ErrInvalidToken
	}

	claims := &sessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, customErrors.ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return model.SessionPayload{}, customErrors.ErrInvalidToken
	}

	if claims.Issued == nil || claims.Expires == nil || claims.UserID == nil {
		return model.SessionPayload{}, customErrors.ErrInvalidToken
	}

	return model.SessionPayload{
		IssuedAt:  *claims.Issued,
		ExpiresAt: *claims.Expires,
		UserID:    *claims.UserID,
	}, nil
}

// IsExpired compares against the wall clock with no skew allowance.
func IsExpired(p model.SessionPayload) bool {
	return IsExpiredAt(p, time.Now())
}

func IsExpiredAt(p model.SessionPayload, now time.Time) bool {
	return p.ExpiresAt.Before(now)
}
