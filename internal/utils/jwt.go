// internal/utils/jwt.go
package utils

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const DefaultTokenIssuer = "substance-compliance"

// TokenUse keeps access and refresh tokens apart; a token is only accepted
// for the use it was issued for.
type TokenUse string

const (
	TokenUseAccess  TokenUse = "access"
	TokenUseRefresh TokenUse = "refresh"
)

var (
	ErrTokenInvalid  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenWrongUse = errors.New("token issued for another use")
)

// StaffClaims identify a member of the compliance desk. The subject is the
// user id; refresh tokens carry no username or role so a role change takes
// effect on the next refresh.
type StaffClaims struct {
	Username string   `json:"username,omitempty"`
	Role     string   `json:"role,omitempty"`
	Use      TokenUse `json:"use"`
	jwt.RegisteredClaims
}

func (c *StaffClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

type tokenSigner struct {
	key    []byte
	issuer string
}

var (
	signerMu sync.RWMutex
	signer   = tokenSigner{key: []byte("your-secret-key-change-in-production"), issuer: DefaultTokenIssuer}
)

// ConfigureTokens sets the HMAC key and issuer used for every token signed
// or verified afterwards. Tokens signed under a previous key stop verifying.
func ConfigureTokens(secret, issuer string) {
	if issuer == "" {
		issuer = DefaultTokenIssuer
	}
	signerMu.Lock()
	signer = tokenSigner{key: []byte(secret), issuer: issuer}
	signerMu.Unlock()
}

func currentSigner() tokenSigner {
	signerMu.RLock()
	defer signerMu.RUnlock()
	return signer
}

func IssueAccessToken(userID uuid.UUID, username, role string, ttl time.Duration) (string, error) {
	return issue(StaffClaims{Username: username, Role: role, Use: TokenUseAccess}, userID, ttl)
}

func IssueRefreshToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	return issue(StaffClaims{Use: TokenUseRefresh}, userID, ttl)
}

func issue(claims StaffClaims, userID uuid.UUID, ttl time.Duration) (string, error) {
	s := currentSigner()
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID.String(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.Use, err)
	}
	return signed, nil
}

// ParseAccessToken verifies an access token and returns its claims.
func ParseAccessToken(token string) (*StaffClaims, error) {
	return parse(token, TokenUseAccess)
}

// ParseRefreshToken verifies a refresh token and returns the user it was
// issued to.
func ParseRefreshToken(token string) (uuid.UUID, error) {
	claims, err := parse(token, TokenUseRefresh)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID()
}

func parse(token string, use TokenUse) (*StaffClaims, error) {
	s := currentSigner()
	claims := &StaffClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil || !parsed.Valid:
		return nil, ErrTokenInvalid
	}

	if !claims.VerifyIssuer(s.issuer, true) {
		return nil, ErrTokenInvalid
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.Use != use {
		return nil, ErrTokenWrongUse
	}
	return claims, nil
}
