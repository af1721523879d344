package invite

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSignature = errors.New("invalid invite token")
	ErrExpired          = errors.New("invite token expired")
)

// DefaultTTL is how long an invite stays redeemable.
const DefaultTTL = 7 * 24 * time.Hour

type Claims struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"user"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 invite tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) Issue(workspaceID, userID, role string) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign invite token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies the signature before looking at expiry, so a tampered token
// is always reported as ErrInvalidSignature.
func (i *Issuer) Parse(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalidSignature
	}
	if claims.WorkspaceID == "" || claims.UserID == "" {
		return Claims{}, ErrInvalidSignature
	}
	return claims, nil
}
