package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"course-admin-service/internal/model"
)

var (
	// ErrTokenExpired is returned for a well-formed token past its expiry,
	// so clients can re-authenticate instead of treating it as tampering.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures and malformed tokens.
	ErrTokenInvalid = errors.New("token invalid")
)

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies HS256 session tokens. The clock is injectable
// so expiry and reissuance behavior is deterministic under test.
type Issuer struct {
	secret           []byte
	issuer           string
	lifetime         time.Duration
	refreshThreshold time.Duration
	now              func() time.Time
}

func NewIssuer(secret, issuer string, lifetime, refreshThreshold time.Duration) *Issuer {
	return &Issuer{
		secret:           []byte(secret),
		issuer:           issuer,
		lifetime:         lifetime,
		refreshThreshold: refreshThreshold,
		now:              time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue creates a signed token with a full lifetime for the user.
func (i *Issuer) Issue(user *model.User) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		UserID: user.UserID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses and validates a token. Expiry and tampering are reported
// as distinct errors; no string matching on the caller side.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// NeedsRefresh reports whether a verified token has dropped under the
// reissuance threshold. The original token stays valid either way.
func (i *Issuer) NeedsRefresh(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Sub(i.now()) < i.refreshThreshold
}
