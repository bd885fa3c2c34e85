package jwtproxy

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-authgate/wpgate/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrTokenGeneration     = errors.New("failed to generate token")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrExpiredRefreshToken = errors.New("refresh token expired")
)

// AccessClaims is the payload of an access JWT. WPToken is the upstream WordPress
// token the reverse proxy attaches on the caller's behalf.
type AccessClaims struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	WPToken     string `json:"wp_token"`
	Type        string `json:"type"`
	jwt.RegisteredClaims
}

// User returns the public part of the claims.
func (c *AccessClaims) User() User {
	return User{
		ID:          c.Subject,
		Username:    c.Username,
		Email:       c.Email,
		DisplayName: c.DisplayName,
	}
}

// RefreshClaims carries only the subject and the jti; everything else lives in the
// active refresh set.
type RefreshClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies the proxy's JWTs. Access and refresh tokens use separate
// HS256 secrets so one can never be presented as the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewIssuer(cfg *config.Config) *Issuer {
	return &Issuer{
		accessSecret:  []byte(cfg.JWTAccessSecret),
		refreshSecret: []byte(cfg.JWTRefreshSecret),
		accessTTL:     cfg.JWTAccessTTL,
		refreshTTL:    cfg.JWTRefreshTTL,
		now:           time.Now,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess signs a short-lived access token for the user.
func (i *Issuer) IssueAccess(u User, wpToken string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.accessTTL)
	claims := AccessClaims{
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		WPToken:     wpToken,
		Type:        tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return signed, expiresAt, nil
}

// IssueRefresh signs a refresh token with a fresh jti.
func (i *Issuer) IssueRefresh(subject string) (signed, jti string, expiresAt time.Time, err error) {
	now := i.now()
	expiresAt = now.Add(i.refreshTTL)
	jti = uuid.New().String()
	claims := RefreshClaims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return signed, jti, expiresAt, nil
}

// ParseAccess verifies signature, expiry and token type of an access JWT.
func (i *Issuer) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(tokenString, claims, i.accessSecret); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != tokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefresh verifies signature, expiry and token type of a refresh JWT.
func (i *Issuer) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(tokenString, claims, i.refreshSecret); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredRefreshToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}
	if claims.Type != tokenTypeRefresh || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidRefreshToken
	}
	return claims, nil
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	return err
}
