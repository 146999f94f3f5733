package node

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// jwtExpiryTolerance is how far an `iat` claim may drift from local time.
const jwtExpiryTolerance = 60 * time.Second

// LoadOrGenerateJWTSecret reads the 32-byte hex secret for the engine
// endpoint, generating and persisting a fresh one when the file is absent.
func LoadOrGenerateJWTSecret(path string) ([32]byte, error) {
	var secret [32]byte
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoded := common.FromHex(strings.TrimSpace(string(data)))
		if len(decoded) != 32 {
			return secret, fmt.Errorf("jwt secret %s: want 32 bytes, got %d", path, len(decoded))
		}
		copy(secret[:], decoded)
		return secret, nil

	case os.IsNotExist(err):
		if _, err := io.ReadFull(rand.Reader, secret[:]); err != nil {
			return secret, err
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(secret[:])), 0600); err != nil {
			return secret, fmt.Errorf("persist jwt secret: %w", err)
		}
		log.Info("Generated engine API secret", "path", path)
		return secret, nil

	default:
		return secret, err
	}
}

// newJWTHandler guards an engine endpoint handler with HS256 bearer token
// authentication carrying an issued-at claim within the drift tolerance.
func newJWTHandler(secret [32]byte, next http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (interface{}, error) { return secret[:], nil }

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tokenString string
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			tokenString = strings.TrimPrefix(auth, "Bearer ")
		}
		if tokenString == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		var claims jwt.RegisteredClaims
		token, err := jwt.ParseWithClaims(tokenString, &claims, keyFunc,
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithoutClaimsValidation())
		switch {
		case err != nil:
			http.Error(w, err.Error(), http.StatusUnauthorized)
		case !token.Valid:
			http.Error(w, "invalid token", http.StatusUnauthorized)
		case claims.IssuedAt == nil:
			http.Error(w, "missing issued-at", http.StatusUnauthorized)
		case time.Since(claims.IssuedAt.Time).Abs() > jwtExpiryTolerance:
			http.Error(w, "stale token", http.StatusUnauthorized)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
