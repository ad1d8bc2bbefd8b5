package guest

import (
	"crypto/rand"
	"math/big"

	"github.com/goliatone/go-errors"
)

// cryptoRandom is the default RandomSource, backed by crypto/rand.
type cryptoRandom struct{}

func (cryptoRandom) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read random bytes")
	}
	return b, nil
}

func (cryptoRandom) IntBetween(min, max int) (int, error) {
	if max < min {
		return 0, errors.New("invalid random range", errors.CategoryBadInput).
			WithMetadata(map[string]any{"min": min, "max": max})
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to generate random int")
	}
	return min + int(n.Int64()), nil
}

func normalizeRandom(r RandomSource) RandomSource {
	if r == nil {
		return cryptoRandom{}
	}
	return r
}
