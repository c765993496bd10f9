package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer        = "pulseboard"
	minSecretLength    = 32
	defaultTokenExpiry = 90 * 24 * time.Hour
	secretFileName     = ".pulseboard-secret-key"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks
var ErrInvalidToken = errors.New("invalid token")

// AuthService issues and validates the JWTs that browsers present to /ws
type AuthService struct {
	secretKey   []byte
	tokenExpiry time.Duration
	now         func() time.Time
}

// CustomClaims represents the JWT claims structure
type CustomClaims struct {
	Subscriber string `json:"subscriber"`
	jwt.RegisteredClaims
}

// DefaultSecretFile is where a generated secret is persisted
func DefaultSecretFile() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return filepath.Join(os.TempDir(), secretFileName)
	}
	return filepath.Join(homeDir, secretFileName)
}

// NewAuthService creates the service. With an empty secret the key is read
// from secretFile, or generated and persisted there on first use.
func NewAuthService(secret, secretFile string, tokenExpiry time.Duration) (*AuthService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		var err error
		secret, err = loadOrCreateSecret(secretFile)
		if err != nil {
			return nil, err
		}
	}

	if len(secret) < minSecretLength {
		log.Printf("[AUTH] Warning: Secret key is only %d bytes. Recommended minimum is %d bytes for HMAC-SHA256", len(secret), minSecretLength)
	}

	if tokenExpiry <= 0 {
		tokenExpiry = defaultTokenExpiry
	}

	return &AuthService{
		secretKey:   []byte(secret),
		tokenExpiry: tokenExpiry,
		now:         time.Now,
	}, nil
}

func loadOrCreateSecret(keyFile string) (string, error) {
	if keyFile == "" {
		keyFile = DefaultSecretFile()
	}

	if data, err := os.ReadFile(keyFile); err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			log.Printf("[AUTH] Loaded persisted secret key from %s (length: %d bytes)", keyFile, len(secret))
			return secret, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading secret key %s: %w", keyFile, err)
	}

	randomBytes := make([]byte, minSecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("generating secret key: %w", err)
	}
	secret := hex.EncodeToString(randomBytes)

	if err := os.WriteFile(keyFile, []byte(secret), 0o600); err != nil {
		log.Printf("[AUTH] Warning: Could not persist secret key to %s: %v", keyFile, err)
	} else {
		log.Printf("[AUTH] Generated and persisted secret key to %s", keyFile)
	}
	return secret, nil
}

// GenerateToken creates a signed token for subscriber and returns its expiry
func (a *AuthService) GenerateToken(subscriber string) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.tokenExpiry)

	claims := CustomClaims{
		Subscriber: subscriber,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateToken verifies and parses a JWT token
func (a *AuthService) ValidateToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// TokenExpiry returns the lifetime of newly issued tokens
func (a *AuthService) TokenExpiry() time.Duration {
	return a.tokenExpiry
}
