package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

type authenticatedUserKey struct{}

// AuthenticatedUser is the caller identity extracted from a bearer token
type AuthenticatedUser struct {
	Sub      string   `json:"sub"`
	Iss      string   `json:"iss"`
	ClientId string   `json:"client_id"`
	Exp      int64    `json:"exp"`
	Iat      int64    `json:"iat"`
	Aud      []string `json:"aud"`
	Roles    []string `json:"roles"`
	Scopes   []string `json:"scopes"`
}

// HasRole reports whether the user carries role
func (u *AuthenticatedUser) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// JwtAuthenticator validates RS256 tokens against a JWKS endpoint, or HS256
// tokens against a shared secret.
type JwtAuthenticator struct {
	JwksUri  string
	secret   []byte
	cacheTTL time.Duration

	mu        sync.Mutex
	keySet    jwk.Set
	fetchedAt time.Time
}

func NewJwtAuthenticator(jwksUri string) *JwtAuthenticator {
	return &JwtAuthenticator{
		JwksUri:  jwksUri,
		cacheTTL: 5 * time.Minute,
	}
}

// NewSimpleJwtAuthenticator validates HMAC-signed tokens. Used for local
// development and tests.
func NewSimpleJwtAuthenticator(secret string) (*JwtAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &JwtAuthenticator{
		secret:   []byte(secret),
		cacheTTL: 5 * time.Minute,
	}, nil
}

// ValidateToken verifies the signature and expiry of tokenString
func (a *JwtAuthenticator) ValidateToken(tokenString string) (*AuthenticatedUser, error) {
	if a.secret == nil && a.JwksUri == "" {
		return nil, errors.New("JWKS URI not configured")
	}

	token, err := jwt.Parse(tokenString, a.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return a.mapClaimsToUser(claims)
}

func (a *JwtAuthenticator) keyFunc(token *jwt.Token) (interface{}, error) {
	if a.secret != nil {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}

	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, _ := token.Header["kid"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.fetchKey(ctx, kid)
}

// fetchKey resolves the public key for kid, refetching the set once on a miss
func (a *JwtAuthenticator) fetchKey(ctx context.Context, kid string) (interface{}, error) {
	set, err := a.getKeySet(ctx)
	if err != nil {
		return nil, err
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		if set, err = a.refreshKeySet(ctx); err != nil {
			return nil, err
		}
		if key, found = set.LookupKeyID(kid); !found {
			return nil, fmt.Errorf("signing key %q not found", kid)
		}
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("failed to extract public key: %w", err)
	}
	return raw, nil
}

func (a *JwtAuthenticator) getKeySet(ctx context.Context) (jwk.Set, error) {
	a.mu.Lock()
	if a.keySet != nil && time.Since(a.fetchedAt) < a.cacheTTL {
		set := a.keySet
		a.mu.Unlock()
		return set, nil
	}
	a.mu.Unlock()
	return a.refreshKeySet(ctx)
}

func (a *JwtAuthenticator) refreshKeySet(ctx context.Context) (jwk.Set, error) {
	set, err := jwk.Fetch(ctx, a.JwksUri)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	a.mu.Lock()
	a.keySet = set
	a.fetchedAt = time.Now()
	a.mu.Unlock()
	return set, nil
}

func (a *JwtAuthenticator) mapClaimsToUser(claims map[string]interface{}) (*AuthenticatedUser, error) {
	user := &AuthenticatedUser{}

	user.Sub, _ = claims["sub"].(string)
	user.Iss, _ = claims["iss"].(string)
	user.ClientId, _ = claims["client_id"].(string)
	if exp, ok := claims["exp"].(float64); ok {
		user.Exp = int64(exp)
	}
	if iat, ok := claims["iat"].(float64); ok {
		user.Iat = int64(iat)
	}

	user.Aud = stringList(claims["aud"])
	user.Roles = stringList(claims["roles"])
	user.Scopes = stringList(claims["scopes"])

	return user, nil
}

func stringList(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// WithAuthenticatedUser stores user on ctx for downstream handlers
func WithAuthenticatedUser(ctx context.Context, user *AuthenticatedUser) context.Context {
	return context.WithValue(ctx, authenticatedUserKey{}, user)
}

// GetAuthenticatedUser returns the user stored by WithAuthenticatedUser
func GetAuthenticatedUser(ctx context.Context) (*AuthenticatedUser, bool) {
	user, ok := ctx.Value(authenticatedUserKey{}).(*AuthenticatedUser)
	return user, ok && user != nil
}
