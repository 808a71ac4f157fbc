package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	AccessExp    time.Time `json:"accessExp"`
	RefreshExp   time.Time `json:"refreshExp"`
}

// Claims represents JWT payload.
type Claims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Type    string `json:"typ"`
	jwt.RegisteredClaims
}

// Identity converts verified claims.
func (c Claims) Identity() Identity {
	return Identity{UID: c.Subject, Email: c.Email, DisplayName: c.Name, PhotoURL: c.Picture}
}

// Issue issues signed access and refresh tokens for id.
func Issue(id Identity, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	if id.UID == "" {
		return TokenPair{}, errors.New("uid required")
	}
	now := time.Now()
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshTTL)

	accessToken, err := sign(id, tokenAccess, issuer, key, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := sign(id, tokenRefresh, issuer, key, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func sign(id Identity, typ, issuer, key string, now, exp time.Time) (string, error) {
	claims := Claims{
		Email:   id.Email,
		Name:    id.DisplayName,
		Picture: id.PhotoURL,
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("missing subject")
	}
	return *claims, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func Refresh(refreshToken, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	claims, err := Parse(refreshToken, key, issuer)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Type != tokenRefresh {
		return TokenPair{}, errors.New("not a refresh token")
	}
	return Issue(claims.Identity(), issuer, key, accessTTL, refreshTTL)
}

// JWTVerifier accepts access tokens minted by Issue.
type JWTVerifier struct {
	Issuer     string
	SigningKey string
}

func (v JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	claims, err := Parse(token, v.SigningKey, v.Issuer)
	if err != nil {
		return Identity{}, err
	}
	if claims.Type != tokenAccess {
		return Identity{}, errors.New("not an access token")
	}
	return claims.Identity(), nil
}
