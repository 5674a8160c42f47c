package phone

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrBadNumber is returned when the input cannot be parsed as a phone number.
var ErrBadNumber = errors.New("bad phone number")

// Normalize parses a phone number in any common spelling and returns its
// canonical E.164 form. A missing leading "+" is tolerated; separators and
// whitespace are handled by the parser. Normalizing an already-canonical
// number returns it unchanged.
func Normalize(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrBadNumber
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}

	num, err := phonenumbers.Parse(s, "ZZ")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadNumber, err)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Identity derives the canonical account handle for an E.164 phone number:
// lowercase hex SHA-1 of the number, "@", lowercased domain. The same
// lowercase rule applies to key-derived handles so the two derivations stay
// comparable as plain strings.
func Identity(e164, domain string) string {
	sum := sha1.Sum([]byte(e164))
	return hex.EncodeToString(sum[:]) + "@" + strings.ToLower(domain)
}

// Mask hides the middle of a phone number for logging (e.g. +49******89).
func Mask(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
