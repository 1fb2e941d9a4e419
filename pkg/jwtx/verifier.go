package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Verifier validates a token and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// EdDSAVerifier checks EdDSA tokens against a set of public keys by kid.
type EdDSAVerifier struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey

	issuer string
	leeway time.Duration
	now    func() time.Time
}

func NewVerifierEdDSA(issuer string, leeway time.Duration) *EdDSAVerifier {
	return &EdDSAVerifier{
		keys:   make(map[string]ed25519.PublicKey),
		issuer: issuer,
		leeway: leeway,
		now:    time.Now,
	}
}

// AddKey registers a verification key. Re-adding a kid replaces it.
func (v *EdDSAVerifier) AddKey(kid string, pub ed25519.PublicKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[kid] = pub
}

// JWKS returns the registered keys in JWK form.
func (v *EdDSAVerifier) JWKS() JWKS {
	v.mu.RLock()
	defer v.mu.RUnlock()

	set := JWKS{Keys: make([]JWK, 0, len(v.keys))}
	for kid, pub := range v.keys {
		set.Keys = append(set.Keys, NewEd25519JWK(kid, pub))
	}
	return set
}

func (v *EdDSAVerifier) Verify(tokenStr string) (Claims, error) {
	// exp/nbf are checked below with our own clock and leeway.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)

		v.mu.RLock()
		pub, ok := v.keys[kid]
		v.mu.RUnlock()

		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}
		return pub, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(v.now(), v.leeway); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
