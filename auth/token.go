// Package auth supplies the bearer tokens attached to transport dials.
// Production deployments inject the token minted by the marketplace
// session; the local signer exists for development and e2e runs against
// a server sharing the same secret.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims defines the data stored inside the JWT.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// LocalSigner mints HS256 tokens for a given participant.
type LocalSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewLocalSigner(secret, issuer string, ttl time.Duration) *LocalSigner {
	return &LocalSigner{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Mint creates a signed JWT for a specific user.
func (s *LocalSigner) Mint(userID string) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates the signature and expiration of a JWT string.
func (s *LocalSigner) Parse(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// StaticToken is a TokenSource around an externally supplied token.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// ParticipantSource mints a fresh token per request for one participant.
type ParticipantSource struct {
	signer *LocalSigner
	userID string
}

func NewParticipantSource(signer *LocalSigner, userID string) ParticipantSource {
	return ParticipantSource{signer: signer, userID: userID}
}

func (p ParticipantSource) Token() (string, error) {
	return p.signer.Mint(p.userID)
}
