// Package pgputil validates presented OpenPGP public keys: parsing, the
// embedded identity claim, its domain binding, and the key fingerprint.
// Each step fails independently so callers can tell a corrupt key apart
// from a key minted for another network.
package pgputil

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

var (
	// ErrMalformedKey means the bytes do not decode as a public key.
	ErrMalformedKey = errors.New("malformed public key")
	// ErrMissingIdentity means the key carries no usable identity claim.
	ErrMissingIdentity = errors.New("public key has no identity claim")
	// ErrDomainMismatch means the claim belongs to another network's namespace.
	ErrDomainMismatch = errors.New("identity claim does not match serving domain")
)

// Key is a parsed public-key artifact.
type Key struct {
	entity *openpgp.Entity
}

// ParseKey decodes a binary or armored OpenPGP public key.
func ParseKey(data []byte) (*Key, error) {
	if len(data) == 0 {
		return nil, ErrMalformedKey
	}

	el, err := openpgp.ReadKeyRing(bytes.NewReader(data))
	if err != nil {
		block, aerr := armor.Decode(bytes.NewReader(data))
		if aerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}
		el, err = openpgp.ReadKeyRing(block.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}
	}
	if len(el) == 0 {
		return nil, ErrMalformedKey
	}

	return &Key{entity: el[0]}, nil
}

// IdentityClaim returns the email-shaped identifier embedded in the key's
// primary user ID.
func (k *Key) IdentityClaim() (string, error) {
	ident := k.entity.PrimaryIdentity()
	if ident == nil || ident.UserId == nil || ident.UserId.Email == "" {
		return "", ErrMissingIdentity
	}
	return ident.UserId.Email, nil
}

// ValidateDomain checks that the claim's domain portion case-insensitively
// equals the serving domain and returns the canonical (lowercased) identity
// handle. This is the check that keeps a key minted under one network's
// namespace from being registered against another.
func ValidateDomain(claim, expectedDomain string) (string, error) {
	at := strings.LastIndex(claim, "@")
	if at <= 0 || at == len(claim)-1 {
		return "", fmt.Errorf("%w: %q", ErrMissingIdentity, claim)
	}
	local, domain := claim[:at], claim[at+1:]
	if !strings.EqualFold(domain, expectedDomain) {
		return "", fmt.Errorf("%w: %s", ErrDomainMismatch, domain)
	}
	return strings.ToLower(local) + "@" + strings.ToLower(expectedDomain), nil
}

// Fingerprint returns the stable digest of the key material.
func (k *Key) Fingerprint() []byte {
	return k.entity.PrimaryKey.Fingerprint
}

// Entity exposes the underlying parsed entity for counter-signing.
func (k *Key) Entity() *openpgp.Entity {
	return k.entity
}

// FingerprintHex renders a fingerprint the way it is stored: uppercase hex.
func FingerprintHex(fingerprint []byte) string {
	return strings.ToUpper(hex.EncodeToString(fingerprint))
}
