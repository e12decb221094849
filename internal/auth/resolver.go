// Package auth resolves bearer credentials into user identities.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
)

// Resolver validates the JWT bearer tokens issued by the account service.
type Resolver struct {
	secret []byte
}

// NewResolver creates a resolver for tokens signed with the given secret.
func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// Claims are the token claims the account service issues.
type Claims struct {
	UserID string `json:"user_id"`
	Nombre string `json:"nombre,omitempty"`
	Correo string `json:"correo,omitempty"`
	jwt.RegisteredClaims
}

// Identify extracts a bearer token from the request and resolves it.
// Missing or invalid tokens resolve to the anonymous identity: read-only
// observers may connect, they are rejected later when they try to edit.
func (r *Resolver) Identify(req *http.Request) domain.Identity {
	token := bearerToken(req)
	if token == "" {
		return domain.Identity{}
	}
	identity, err := r.Resolve(token)
	if err != nil {
		return domain.Identity{}
	}
	return identity
}

// Resolve validates a raw token and returns the identity it carries.
func (r *Resolver) Resolve(token string) (domain.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return domain.Identity{}, err
	}
	if claims.UserID == "" {
		return domain.Identity{}, errors.New("token carries no user id")
	}
	return domain.Identity{UserID: claims.UserID, Name: claims.Nombre, Email: claims.Correo}, nil
}

// IssueToken signs a token for the given identity. Used by tests and local
// tooling; real tokens come from the account service.
func (r *Resolver) IssueToken(identity domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: identity.UserID,
		Nombre: identity.Name,
		Correo: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// bearerToken looks for the credential in the Authorization header first,
// then in the query parameters browsers fall back to when they cannot set
// headers on a WebSocket handshake.
func bearerToken(req *http.Request) string {
	if h := req.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	query := req.URL.Query()
	for _, key := range []string{"token", "access", "authorization"} {
		if v := query.Get(key); v != "" {
			return v
		}
	}
	return ""
}
