// Package uid generates upload identifiers.
package uid

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// Length is the number of characters of the default identifiers.
const Length = 32

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var alphabetSize = big.NewInt(int64(len(alphabet)))

// New returns a random identifier of Length characters drawn from
// [0-9A-Za-z]. It panics if the system random source fails.
func New() string {
	var sb strings.Builder
	sb.Grow(Length)

	for range Length {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			panic(err)
		}
		sb.WriteByte(alphabet[n.Int64()])
	}

	return sb.String()
}

// UUID returns a random (version 4) UUID rendered as 32 lowercase hex
// characters.
func UUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
