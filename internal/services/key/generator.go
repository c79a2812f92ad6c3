package key

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// KeyPrefix marks every gateway-issued bearer credential.
	KeyPrefix = "gw-"

	// RandomLength is the number of random characters after the prefix.
	RandomLength = 48

	charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Generate returns a new bearer key: the gw- prefix followed by
// RandomLength cryptographically random alphanumeric characters.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(len(KeyPrefix) + RandomLength)
	b.WriteString(KeyPrefix)

	max := big.NewInt(int64(len(charset)))
	for i := 0; i < RandomLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random key: %w", err)
		}
		b.WriteByte(charset[n.Int64()])
	}

	return b.String(), nil
}

// ValidFormat checks that a key string looks like a gateway-issued key.
// It does not check existence; that is the store's job.
func ValidFormat(key string) bool {
	if !strings.HasPrefix(key, KeyPrefix) {
		return false
	}
	body := strings.TrimPrefix(key, KeyPrefix)
	if len(body) < 32 {
		return false
	}
	for _, c := range body {
		if !strings.ContainsRune(charset, c) {
			return false
		}
	}
	return true
}
