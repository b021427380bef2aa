package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet represents a set of JSON Web Keys
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// Verifier validates access tokens against an OIDC issuer's JWKS endpoint.
type Verifier struct {
	Issuer       string
	ClientID     string
	JWKSEndpoint string
	jwkSet       *JWKSet
	lastFetch    time.Time
}

// UserClaims represents the claims carried by an access token.
type UserClaims struct {
	Sub      string `json:"sub"`
	TokenUse string `json:"token_use"`
	Scope    string `json:"scope"`
	AuthTime int64  `json:"auth_time"`
	Iss      string `json:"iss"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// NewVerifier creates a verifier for the given issuer. The JWKS endpoint
// defaults to the issuer's well-known location when empty.
func NewVerifier(issuer, clientID, jwksEndpoint string) *Verifier {
	if jwksEndpoint == "" && issuer != "" {
		jwksEndpoint = issuer + "/.well-known/jwks.json"
	}
	return &Verifier{
		Issuer:       issuer,
		ClientID:     clientID,
		JWKSEndpoint: jwksEndpoint,
	}
}

// fetchJWKS fetches the JWKS, cached for an hour.
func (v *Verifier) fetchJWKS() error {
	if v.jwkSet != nil && time.Since(v.lastFetch) < time.Hour {
		return nil
	}

	resp, err := http.Get(v.JWKSEndpoint)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch JWKS: status %d", resp.StatusCode)
	}

	var jwkSet JWKSet
	if err := json.NewDecoder(resp.Body).Decode(&jwkSet); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	v.jwkSet = &jwkSet
	v.lastFetch = time.Now()
	return nil
}

// getPublicKey resolves the RSA public key for a key id.
func (v *Verifier) getPublicKey(kid string) (*rsa.PublicKey, error) {
	if err := v.fetchJWKS(); err != nil {
		return nil, err
	}

	for _, key := range v.jwkSet.Keys {
		if key.Kid == kid && key.Kty == "RSA" {
			return jwkToRSAPublicKey(key)
		}
	}

	return nil, fmt.Errorf("key with kid %s not found", kid)
}

func jwkToRSAPublicKey(jwk JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode N: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode E: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}

// ValidateToken validates an access token and returns its claims.
func (v *Verifier) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid not found in token header")
		}

		return v.getPublicKey(kid)
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token or claims")
	}

	if v.Issuer != "" && claims.Iss != v.Issuer {
		return nil, fmt.Errorf("invalid issuer: %s", claims.Iss)
	}

	if claims.TokenUse != "" && claims.TokenUse != "access" {
		return nil, fmt.Errorf("invalid token use: %s", claims.TokenUse)
	}

	if v.ClientID != "" && claims.ClientID != v.ClientID {
		return nil, fmt.Errorf("invalid client ID: %s", claims.ClientID)
	}

	return claims, nil
}
