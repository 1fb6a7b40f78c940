package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	deliveryCodeLen      = 8
	deliveryCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts      = 5
)

// NewDeliveryCode returns a random uppercase alphanumeric pickup code.
func NewDeliveryCode() (string, error) {
	buf := make([]byte, deliveryCodeLen)
	limit := big.NewInt(int64(len(deliveryCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate delivery code: %w", err)
		}
		buf[i] = deliveryCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
