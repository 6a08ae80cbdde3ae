package services

import (
	"errors"
	"strings"
	"time"

	"appointment-duration-api/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Operator roles. Only admins may retrain or read the run log.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type AuthService struct {
	jwtSecret []byte
	expiryH   int
	admin     config.AdminConfig
}

func NewAuthService(cfg config.JWTConfig, admin config.AdminConfig) *AuthService {
	return &AuthService{
		jwtSecret: []byte(cfg.Secret),
		expiryH:   cfg.ExpiryHours,
		admin:     admin,
	}
}

func (s *AuthService) HashPassword(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(bytes), err
}

func (s *AuthService) CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Login checks the configured operator account and issues an admin token.
// With no password hash configured, nobody can log in.
func (s *AuthService) Login(email, password string) (string, error) {
	if s.admin.PasswordHash == "" || !strings.EqualFold(strings.TrimSpace(email), s.admin.Email) {
		return "", ErrInvalidCredentials
	}
	if !s.CheckPassword(s.admin.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	return s.GenerateToken(s.admin.Email, RoleAdmin)
}

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (s *AuthService) GenerateToken(email, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:      uuid.NewString(),
			Subject: email,
			ExpiresAt: jwt.NewNumericDate(now.Add(
				time.Duration(s.expiryH) * time.Hour,
			)),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.jwtSecret, nil
		},
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
