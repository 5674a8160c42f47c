// Package keyring holds the network's signing keys and counter-signs
// validated public keys, proving network membership.
package keyring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/hermod-im/server/internal/pgputil"
)

var (
	// ErrNoSigningKey means no signing key is configured for the domain.
	ErrNoSigningKey = errors.New("no signing key for domain")
	// ErrSigning means the signing key could not be used.
	ErrSigning = errors.New("signing failed")
)

// DomainKey names the signing key for one served domain. The fingerprint
// hint selects an entity from the keyring file; a suffix is enough.
type DomainKey struct {
	Domain          string
	FingerprintHint string
}

// Keyring maps each served domain to its decrypted signing entity. Built
// once at startup and injected; read-only afterwards, so concurrent Sign
// calls need no locking.
type Keyring struct {
	byDomain map[string]*openpgp.Entity
}

// Load reads an armored private keyring file and selects one signing entity
// per served domain. Encrypted keys are decrypted with the passphrase.
func Load(path string, keys []DomainKey, passphrase string) (*Keyring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signing keyring: %w", err)
	}
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("read signing keyring: %w", err)
	}

	kr := &Keyring{byDomain: make(map[string]*openpgp.Entity, len(keys))}
	for _, dk := range keys {
		entity := findByFingerprint(entities, dk.FingerprintHint)
		if entity == nil || entity.PrivateKey == nil {
			return nil, fmt.Errorf("%w: %s (hint %q)", ErrNoSigningKey, dk.Domain, dk.FingerprintHint)
		}
		if entity.PrivateKey.Encrypted {
			if err := entity.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
				return nil, fmt.Errorf("decrypt signing key for %s: %w", dk.Domain, err)
			}
		}
		kr.byDomain[strings.ToLower(dk.Domain)] = entity
	}
	return kr, nil
}

// NewFromEntities builds a keyring from in-memory entities. Intended for
// tests and embedded setups.
func NewFromEntities(byDomain map[string]*openpgp.Entity) *Keyring {
	m := make(map[string]*openpgp.Entity, len(byDomain))
	for domain, entity := range byDomain {
		m[strings.ToLower(domain)] = entity
	}
	return &Keyring{byDomain: m}
}

// Sign appends the domain's certification to the presented public key and
// returns the serialized signed key.
func (kr *Keyring) Sign(ctx context.Context, key *pgputil.Key, domain string) ([]byte, error) {
	signer, ok := kr.byDomain[strings.ToLower(domain)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, domain)
	}

	entity := key.Entity()
	ident := entity.PrimaryIdentity()
	if ident == nil {
		return nil, fmt.Errorf("%w: key has no identity to certify", ErrSigning)
	}

	if err := entity.SignIdentity(ident.Name, signer, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	var buf bytes.Buffer
	if err := entity.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize: %v", ErrSigning, err)
	}
	return buf.Bytes(), nil
}

// Domains lists the domains this keyring can sign for.
func (kr *Keyring) Domains() []string {
	out := make([]string, 0, len(kr.byDomain))
	for domain := range kr.byDomain {
		out = append(out, domain)
	}
	return out
}

func findByFingerprint(entities openpgp.EntityList, hint string) *openpgp.Entity {
	h := strings.ToUpper(strings.ReplaceAll(hint, " ", ""))
	for _, entity := range entities {
		fpr := pgputil.FingerprintHex(entity.PrimaryKey.Fingerprint)
		if h == "" || fpr == h || strings.HasSuffix(fpr, h) {
			return entity
		}
	}
	return nil
}
