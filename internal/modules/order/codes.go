// README: Order code and verification code generation.
package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// NewOrderCode returns a human-readable code: two-digit year, two-digit
// month, dash, six random digits. Uniqueness is enforced by the orders
// table; the service retries on collision.
func NewOrderCode(now time.Time) string {
	return fmt.Sprintf("%02d%02d-%06d", now.Year()%100, int(now.Month()), randDigits(1000000))
}

// NewVerificationCode returns a short numeric code used for pickup and
// handoff verification. Compared exactly as a string.
func NewVerificationCode() string {
	return fmt.Sprintf("%04d", randDigits(10000))
}

func randDigits(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		// crypto/rand only fails if the OS entropy source is broken.
		panic(err)
	}
	return n.Int64()
}
