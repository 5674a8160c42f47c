// Package register drives the two-phase registration protocol: a phone
// number yields an out-of-band verification code, and the code together
// with a public key yields a counter-signed key bound to the account.
package register

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strings"

	"github.com/hermod-im/server/internal/keyring"
	"github.com/hermod-im/server/internal/pgputil"
	"github.com/hermod-im/server/internal/phone"
	"github.com/hermod-im/server/internal/sms"
	"github.com/hermod-im/server/internal/verify"
)

// AccountBinder records the final key-to-account binding. Failures are
// loud: they surface as internal errors, never silently.
type AccountBinder interface {
	BindFingerprint(ctx context.Context, identity, domain, fingerprintHex string) error
}

// TokenSigner mints the access token returned with a signed key. Optional.
type TokenSigner interface {
	SignAccessToken(identity, domain, fingerprintHex string) (string, error)
}

// Service is the registration orchestrator. Each request is handled
// independently; all persistent state lives in the code store and the
// account repository, so the service itself is safe for concurrent use.
type Service struct {
	store    verify.Store
	provider sms.Provider
	keyring  *keyring.Keyring
	accounts AccountBinder
	tokens   TokenSigner
	stats    *Stats
}

// NewService wires the orchestrator. tokens may be nil.
func NewService(
	store verify.Store,
	provider sms.Provider,
	kr *keyring.Keyring,
	accounts AccountBinder,
	tokens TokenSigner,
	stats *Stats,
) *Service {
	return &Service{
		store:    store,
		provider: provider,
		keyring:  kr,
		accounts: accounts,
		tokens:   tokens,
		stats:    stats,
	}
}

// Process handles one registration request and returns either a Result or
// a *Failure. Counters: completed on a signed key, rejected on any failure.
func (s *Service) Process(ctx context.Context, req Request, p Principal, dom DomainInfo) (Result, error) {
	result, err := s.process(ctx, req, p, dom)
	if err != nil {
		s.stats.Rejected.Inc()
		return nil, err
	}
	if _, ok := result.(*Registered); ok {
		s.stats.Completed.Inc()
	}
	return result, nil
}

func (s *Service) process(ctx context.Context, req Request, p Principal, dom DomainInfo) (Result, error) {
	switch req.Kind {
	case KindSet:
		return s.processSet(ctx, req, p, dom)
	case KindGet:
		return s.instructions(), nil
	default:
		return nil, fail(ClassBadRequest, msgBadType, nil)
	}
}

func (s *Service) processSet(ctx context.Context, req Request, p Principal, dom DomainInfo) (Result, error) {
	if !p.Authorized && !dom.RegisterEnabled {
		return nil, fail(ClassNotAuthorized, msgNotAllowed, nil)
	}

	hasPhone := strings.TrimSpace(req.Phone) != ""
	hasCodeAndKey := strings.TrimSpace(req.Code) != "" && strings.TrimSpace(req.PublicKey) != ""

	switch {
	case hasPhone && hasCodeAndKey:
		// Ambiguous request. Rejected rather than silently preferring the
		// phone branch, which would hide client bugs.
		return nil, fail(ClassBadRequest, msgMalformedRequest, nil)
	case hasPhone:
		return s.registerPhone(ctx, req.Phone, p, dom)
	case hasCodeAndKey:
		return s.registerKey(ctx, req.Code, req.PublicKey, p, dom)
	default:
		return nil, fail(ClassBadRequest, msgMalformedRequest, nil)
	}
}

// registerPhone normalizes the number, issues a code for the derived
// identity and hands it to the verification channel.
func (s *Service) registerPhone(ctx context.Context, rawPhone string, p Principal, dom DomainInfo) (Result, error) {
	s.stats.Attempts.Inc()

	number, err := phone.Normalize(rawPhone)
	if err != nil {
		log.Printf("invalid phone number: %s", phone.Mask(rawPhone))
		return nil, fail(ClassBadRequest, msgBadPhone, err)
	}

	identity := phone.Identity(number, dom.Domain)
	if p.Authorized && p.Identity != identity {
		return nil, fail(ClassNotAuthorized, msgNotAuthorized, nil)
	}

	code, err := s.store.Issue(ctx, identity)
	if err != nil {
		if errors.Is(err, verify.ErrAlreadyRegistered) {
			log.Printf("throttling registration for %s", identity)
			return nil, fail(ClassServiceUnavailable, msgTooManyAttempts, err)
		}
		log.Printf("verification store error for %s: %v", identity, err)
		return nil, fail(ClassInternal, msgStorageProblem, err)
	}

	if err := s.provider.SendCode(ctx, number, code); err != nil {
		// The issued record stays intact; the user can re-request a fresh
		// code, or an operator can relay this one out-of-band.
		log.Printf("failed to send verification code to %s: %v", phone.Mask(number), err)
		return nil, fail(ClassNotAcceptable, msgUnableToSend, err)
	}

	return &CodeSent{
		Instructions: s.provider.Instructions(),
		From:         s.provider.SenderID(),
	}, nil
}

// registerKey validates the presented key, checks the code for the claimed
// identity and, only then, counter-signs the key and binds it.
func (s *Service) registerKey(ctx context.Context, code, publicKeyB64 string, p Principal, dom DomainInfo) (Result, error) {
	keyData, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicKeyB64))
	if err != nil {
		return nil, fail(ClassBadRequest, msgInvalidKey, err)
	}

	key, err := pgputil.ParseKey(keyData)
	if err != nil {
		return nil, fail(ClassBadRequest, msgInvalidKey, err)
	}

	claim, err := key.IdentityClaim()
	if err != nil {
		return nil, fail(ClassBadRequest, msgInvalidKey, err)
	}

	identity, err := pgputil.ValidateDomain(claim, dom.Domain)
	if err != nil {
		return nil, fail(ClassBadRequest, msgInvalidKey, err)
	}

	if p.Authorized && p.Identity != identity {
		return nil, fail(ClassNotAuthorized, msgNotAuthorized, nil)
	}

	ok, err := s.store.Verify(ctx, identity, code)
	if err != nil {
		log.Printf("verification store error for %s: %v", identity, err)
		return nil, fail(ClassInternal, msgStorageProblem, err)
	}
	if !ok {
		return nil, fail(ClassBadRequest, msgInvalidCode, nil)
	}

	signed, err := s.keyring.Sign(ctx, key, dom.Domain)
	if err != nil {
		log.Printf("signing failed for %s: %v", identity, err)
		return nil, fail(ClassInternal, msgSigningProblem, err)
	}

	fingerprint := pgputil.FingerprintHex(key.Fingerprint())
	if err := s.accounts.BindFingerprint(ctx, identity, dom.Domain, fingerprint); err != nil {
		log.Printf("account binding failed for %s: %v", identity, err)
		return nil, fail(ClassInternal, msgStorageProblem, err)
	}
	log.Printf("registered %s with key %s", identity, fingerprint)

	result := &Registered{
		FormType:  FormTypeSignedKey,
		PublicKey: base64.StdEncoding.EncodeToString(signed),
	}
	if s.tokens != nil {
		token, err := s.tokens.SignAccessToken(identity, dom.Domain, fingerprint)
		if err != nil {
			log.Printf("token mint failed for %s: %v", identity, err)
			return nil, fail(ClassInternal, msgSigningProblem, err)
		}
		result.Token = token
	}
	return result, nil
}

func (s *Service) instructions() *Instructions {
	return &Instructions{
		Instructions: "Submit your phone number to receive a verification code, then submit the code together with your public key.",
		Fields:       []string{"phone", "code", "publickey"},
	}
}
