package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
)

// Claims defines the structured data we store in the JWT
type Claims struct {
	UserID     uuid.UUID   `json:"user_id"`
	Name       string      `json:"name"`
	Role       domain.Role `json:"role"`
	Department string      `json:"department,omitempty"`
	IsCEO      bool        `json:"is_ceo,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the identity the workflow works with.
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{
		ID:         c.UserID,
		Name:       c.Name,
		Role:       c.Role,
		Department: c.Department,
		IsCEO:      c.IsCEO,
	}
}

type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secretKey: []byte(secret), ttl: ttl}
}

// GenerateToken creates a new JWT access token for the actor.
// Tokens are normally issued by the identity provider; this is used by
// tooling and tests.
func (tm *TokenManager) GenerateToken(actor domain.Actor) (string, error) {
	expirationTime := time.Now().Add(tm.ttl)
	claims := &Claims{
		UserID:     actor.ID,
		Name:       actor.Name,
		Role:       actor.Role,
		Department: actor.Department,
		IsCEO:      actor.IsCEO,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   actor.ID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	if claims.UserID == uuid.Nil {
		return nil, errors.New("token has no user id")
	}
	if !claims.Role.IsValid() || claims.Role == domain.RoleSystem {
		return nil, errors.New("token has an unusable role")
	}

	return claims, nil
}
