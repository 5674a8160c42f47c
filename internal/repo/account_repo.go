package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hermod-im/server/internal/model"
)

// AccountRepo records the final key-to-account binding.
type AccountRepo interface {
	BindFingerprint(ctx context.Context, identity, domain, fingerprintHex string) error
	Binding(ctx context.Context, identity string) (model.AccountBinding, error)
}

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance.
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

// BindFingerprint upserts the key binding for an account. Re-registration
// with a new key replaces the stored fingerprint.
func (r *accountRepo) BindFingerprint(ctx context.Context, identity, domain, fingerprintHex string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (identity, domain, fingerprint)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE
		SET fingerprint = EXCLUDED.fingerprint, updated_at = now()
	`, identity, domain, fingerprintHex)
	if err != nil {
		return fmt.Errorf("bind fingerprint: %w", err)
	}
	return nil
}

// Binding returns the stored binding for an identity.
func (r *accountRepo) Binding(ctx context.Context, identity string) (model.AccountBinding, error) {
	var b model.AccountBinding
	err := r.db.QueryRowContext(ctx, `
		SELECT identity, domain, fingerprint, created_at, updated_at
		FROM accounts
		WHERE identity = $1
	`, identity).Scan(&b.Identity, &b.Domain, &b.Fingerprint, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.AccountBinding{}, fmt.Errorf("account not found: %w", err)
		}
		return model.AccountBinding{}, fmt.Errorf("query account: %w", err)
	}
	return b, nil
}
