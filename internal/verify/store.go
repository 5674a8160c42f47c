// Package verify defines the verification code store: the durable map from
// an identity handle to its one outstanding one-time code.
package verify

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// ErrAlreadyRegistered is returned by Issue while a not-yet-expired code is
// outstanding for the identity. Callers translate it into a "too many
// attempts, try later" outcome.
var ErrAlreadyRegistered = errors.New("verification code already issued")

// DefaultCodeLength is the number of digits in a one-time code.
const DefaultCodeLength = 6

// Store associates each identity with at most one outstanding code.
//
// Issue generates a fresh code and durably records it, superseding any
// expired record; it fails with ErrAlreadyRegistered while an unexpired one
// exists. Verify reports whether code exactly matches the outstanding
// unexpired record and consumes the record on success; a wrong or missing
// code is (false, nil), any error is a storage failure.
//
// Both operations must be atomic per identity at the storage layer: two
// concurrent Issues must not both pass the throttle, and two concurrent
// Verifies with the correct code must not both succeed.
type Store interface {
	Issue(ctx context.Context, identity string) (string, error)
	Verify(ctx context.Context, identity, code string) (bool, error)
}

// GenerateCode returns a fixed-length numeric one-time code drawn from a
// cryptographic source.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	ten := big.NewInt(10)
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}
