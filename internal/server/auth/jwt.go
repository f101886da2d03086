package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims: the standard set plus the account
// and its role.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string      `json:"account_id"`
	Role      models.Role `json:"role"`
}

func GenerateToken(accountID string, role models.Role, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		AccountID: accountID,
		Role:      role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and expiry and returns the claims.
// Any failure is reported as common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.AccountID == "" {
		return nil, common.ErrInvalidToken
	}

	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, errors.New("unknown role"))
	}

	return claims, nil
}
