package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultAccessTokenTTL = 24 * time.Hour

// Claims carried by a registration access token. The subject is the
// identity handle the token holder proved ownership of.
type Claims struct {
	Identity    string    `json:"sub"`
	Domain      string    `json:"domain"`
	Fingerprint string    `json:"fpr,omitempty"`
	TokenID     uuid.UUID `json:"jti"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies session principal tokens.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTService creates a new JWT service. A zero TTL uses the default.
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}
	return &JWTService{secret: []byte(secret), ttl: ttl}
}

// SignAccessToken mints a token for a freshly registered identity.
func (s *JWTService) SignAccessToken(identity, domain, fingerprintHex string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Identity:    identity,
		Domain:      domain,
		Fingerprint: fingerprintHex,
		TokenID:     uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return tokenString, nil
}

// VerifyToken verifies and parses a token.
func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
