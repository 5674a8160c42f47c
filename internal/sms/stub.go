package sms

import (
	"context"
	"log"
	"sync"

	"github.com/hermod-im/server/internal/phone"
)

func init() {
	Register("stub", func(cfg Config) (Provider, error) {
		return NewStub(cfg["sender"]), nil
	})
}

// Delivery records one stub send.
type Delivery struct {
	Phone string
	Code  string
}

// Stub never sends anything; it logs the (masked) destination and records
// deliveries for inspection. Development and tests only.
type Stub struct {
	sender string

	mu   sync.Mutex
	sent []Delivery
}

// NewStub creates a stub provider.
func NewStub(sender string) *Stub {
	if sender == "" {
		sender = "hermod-dev"
	}
	return &Stub{sender: sender}
}

func (s *Stub) SendCode(ctx context.Context, number, code string) error {
	s.mu.Lock()
	s.sent = append(s.sent, Delivery{Phone: number, Code: code})
	s.mu.Unlock()

	log.Printf("sms stub: would deliver code to %s", phone.Mask(number))
	return nil
}

func (s *Stub) SenderID() string { return s.sender }

func (s *Stub) Instructions() string {
	return "A verification code has been generated. The stub provider does not deliver SMS; check the server log."
}

// Deliveries returns a copy of everything sent so far.
func (s *Stub) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivery, len(s.sent))
	copy(out, s.sent)
	return out
}
