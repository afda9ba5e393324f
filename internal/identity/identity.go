// Package identity turns identity-provider bearer tokens into the caller identity used by the cart and checkout.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Identity is the caller as seen by the storefront. The zero value is an anonymous guest.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Anonymous is the guest identity.
var Anonymous = Identity{}

func (i Identity) IsAuthenticated() bool {
	return i.Subject != ""
}

// Owner returns the subject as a cart/order owner key, or nil for guests.
func (i Identity) Owner() *string {
	if !i.IsAuthenticated() {
		return nil
	}
	s := i.Subject
	return &s
}

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens issued for the storefront.
type Verifier struct {
	secret  []byte
	options []jwt.ParserOption
}

func NewVerifier(secret, issuer, audience string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Verifier{secret: []byte(secret), options: opts}
}

// Enabled reports whether a signing secret was configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

func (v *Verifier) Verify(raw string) (Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return Anonymous, ErrMissingToken
	}
	if !v.Enabled() {
		return Anonymous, fmt.Errorf("%w: verifier has no secret", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, v.options...)
	if err != nil || !token.Valid {
		return Anonymous, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return Anonymous, fmt.Errorf("%w: subject claim missing", ErrInvalidToken)
	}

	return Identity{
		Subject: claims.Subject,
		Email:   strings.ToLower(strings.TrimSpace(claims.Email)),
		Name:    strings.TrimSpace(claims.Name),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
