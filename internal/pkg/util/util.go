package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateTimestampWithPrefix builds a human readable identifier such as
// "TB1724832000123456789" used for order ids.
func GenerateTimestampWithPrefix(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
}

const digits = "0123456789"

// GenerateRandomDigits returns n random decimal digits, used for payment
// reference suffixes.
func GenerateRandomDigits(n int) string {
	buff := make([]byte, n)
	max := big.NewInt(int64(len(digits)))

	for i := range buff {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			buff[i] = digits[0]
			continue
		}
		buff[i] = digits[idx.Int64()]
	}

	return string(buff)
}
