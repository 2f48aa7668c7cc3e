package auth

import (
	"fmt"
	"live-hub/domain"
	"live-hub/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
// Scopes lists the courses and study groups the user is enrolled in.
type CustomClaims struct {
	UserID string   `json:"user_id"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Verifier checks the bearer tokens presented by clients. Session issuance
// belongs to the identity service; Issue exists for tools and tests sharing
// the same secret.
type Verifier struct {
	key    []byte
	issuer string
}

func NewVerifier(secret, issuer string) Verifier {
	return Verifier{key: []byte(secret), issuer: issuer}
}

// Issue creates a signed JWT for a specific user.
func (v Verifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: string(identity.UserID),
		Scopes: identity.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}
	// HS256 (HMAC with SHA256)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}

// Verify parses and validates the signature, issuer and expiration of a JWT string.
func (v Verifier) Verify(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(v.issuer))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing user", errors.ErrInvalidToken)
	}
	return domain.Identity{UserID: domain.UserID(claims.UserID), Scopes: claims.Scopes}, nil
}
