package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mailtriage/internal/model"
)

const defaultStateTTL = 10 * time.Minute

type stateClaims struct {
	Provider model.Provider `json:"provider"`
	jwt.RegisteredClaims
}

// StateSigner 用 HS256 签发 OAuth state，回调时校验以防 CSRF
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue 为某个提供商签发 state
func (s *StateSigner) Issue(p model.Provider) (string, error) {
	now := s.now()
	claims := stateClaims{
		Provider: p,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Verify 校验 state 的签名、有效期和提供商
func (s *StateSigner) Verify(state string, p model.Provider) error {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Provider != p {
		return fmt.Errorf("%w: issued for %s", ErrInvalidState, claims.Provider)
	}
	return nil
}
