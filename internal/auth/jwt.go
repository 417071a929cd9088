package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"subs_engine/internal/entity"
)

// MinSecretLen is the shortest HS256 key accepted, in bytes
const MinSecretLen = 32

var (
	ErrInvalidToken            = errors.New("invalid token")
	ErrUnexpectedSigningMethod = errors.New("unexpected signing method")
	ErrWeakSecret              = errors.New("jwt secret too short")
)

// Claims carries the caller account in the standard subject claim
type Claims struct {
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 tokens that identify the calling account
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTManager fails when secret is shorter than MinSecretLen
func NewJWTManager(secret string, ttl time.Duration) (*JWTManager, error) {
	if err := CheckSecret(secret); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{
		secretKey: []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// CheckSecret reports whether secret is long enough to sign tokens with
func CheckSecret(secret string) error {
	if len(secret) < MinSecretLen {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrWeakSecret, len(secret), MinSecretLen)
	}
	return nil
}

// Generate issues a token for account
func (j *JWTManager) Generate(account entity.Account) (string, error) {
	if account.IsZero() {
		return "", fmt.Errorf("generate token: %w", ErrInvalidToken)
	}
	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   account.Normalize().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// Validate verifies tokenString and returns the account it was issued for
func (j *JWTManager) Validate(tokenString string) (entity.Account, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnexpectedSigningMethod
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	account := entity.Account(claims.Subject).Normalize()
	if account.IsZero() {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return account, nil
}
