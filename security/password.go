package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"pixgate/utility"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	ApiKeyPrefix    = "pk_live_"
	apiKeyRandBytes = 16
	lookupPrefixLen = 8
	minPasswordLen  = 8
)

func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", utility.Errf("password must have at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewApiKey returns the plain key shown once to the merchant, its stored hash and lookup prefix
func NewApiKey() (plain, hash, prefix string, err error) {
	buf := make([]byte, apiKeyRandBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	plain = ApiKeyPrefix + hex.EncodeToString(buf)
	return plain, HashToken(plain), ApiKeyLookupPrefix(plain), nil
}

// ApiKeyLookupPrefix is the first characters of the random part, stored in clear for lookup
func ApiKeyLookupPrefix(plain string) string {
	random := strings.TrimPrefix(plain, ApiKeyPrefix)
	if len(random) < lookupPrefixLen {
		return random
	}
	return random[:lookupPrefixLen]
}

func IsApiKey(s string) bool {
	return strings.HasPrefix(s, ApiKeyPrefix) && len(s) == len(ApiKeyPrefix)+apiKeyRandBytes*2
}

// HashToken is a sha256 hex digest, used for api keys and refresh tokens
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func HashEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomSecret returns n random bytes hex encoded, used for jwt and webhook secrets
func RandomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
