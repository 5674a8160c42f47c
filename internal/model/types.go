package model

import (
	"time"

	"github.com/google/uuid"
)

// VerificationRecord is the one outstanding one-time code for an identity
// handle, plus its issuance window.
type VerificationRecord struct {
	ID         uuid.UUID
	Identity   string
	Code       string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// AccountBinding records which key fingerprint is bound to an account.
type AccountBinding struct {
	Identity    string
	Domain      string
	Fingerprint string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
