package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

type Claims struct {
	UserID int64  `json:"user_id"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// GenerateToken issues an access token accepted by ParseToken.
func GenerateToken(secret string, userID int64, ttl time.Duration) (string, error) {
	return generate(secret, userID, TokenAccess, ttl)
}

// GenerateRefreshToken issues a token that can only be exchanged for a new
// access token.
func GenerateRefreshToken(secret string, userID int64, ttl time.Duration) (string, error) {
	return generate(secret, userID, TokenRefresh, ttl)
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	return parse(secret, tokenString, TokenAccess)
}

func ParseRefreshToken(secret, tokenString string) (*Claims, error) {
	return parse(secret, tokenString, TokenRefresh)
}

func generate(secret string, userID int64, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parse(secret, tokenString, tokenType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 || claims.Type != tokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
