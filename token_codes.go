package guest

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// Short codes are 6 decimal digits inside a range that avoids leading
	// zeros and trivially guessable extremes.
	shortCodeMin = 102030
	shortCodeMax = 989796

	longTokenBytes = 16
	longTokenLen   = 10
)

var longTokenStrip = strings.NewReplacer("+", "", "/", "", "-", "", "=", "")

// generateLongToken derives a 10 character alphanumeric token from 16 bytes
// of secure randomness. Collisions are cryptographically negligible, so the
// result is not checked against storage.
func generateLongToken(random RandomSource) (string, error) {
	b, err := normalizeRandom(random).Bytes(longTokenBytes)
	if err != nil {
		return "", err
	}
	token := longTokenStrip.Replace(base64.StdEncoding.EncodeToString(b))
	if len(token) < longTokenLen {
		return token, nil
	}
	return token[:longTokenLen], nil
}

// generateShortCode produces a unique 6 digit decimal code. Uniqueness is
// checked against storage through exists on every attempt: concurrent
// requests may race on the same candidate, so no in memory cache is kept.
func generateShortCode(random RandomSource, exists func(code string) (bool, error)) (string, error) {
	random = normalizeRandom(random)
	for {
		n, err := random.IntBetween(shortCodeMin, shortCodeMax)
		if err != nil {
			return "", err
		}
		code := fmt.Sprintf("%06d", n)
		taken, err := exists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
}
