package jwt

import (
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// Generator signs and validates the app session tokens that authenticate
// publish and connect requests. Sessions are minted by the app's login
// surface; this core only needs the subject (user id) out of them.
type Generator struct {
	secret []byte
	ttl    time.Duration
}

// NewGenerator constructs a JWT generator over the shared HS256 secret.
func NewGenerator(secret string, ttl time.Duration) (*Generator, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	return &Generator{secret: []byte(secret), ttl: ttl}, nil
}

// Generate produces a signed session token for the user.
func (g *Generator) Generate(userID string) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: g.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	claims := gojwt.Claims{
		Subject:   userID,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(g.ttl)),
		NotBefore: gojwt.NewNumericDate(now),
	}

	token, err := gojwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Validate verifies the signature and expiry and returns the subject.
func (g *Generator) Validate(token string) (string, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	var claims gojwt.Claims
	if err := parsed.Claims(g.secret, &claims); err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	if err := claims.Validate(gojwt.Expected{Time: time.Now()}); err != nil {
		return "", fmt.Errorf("validate claims: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return claims.Subject, nil
}
