package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hermod-im/server/internal/model"
	"github.com/hermod-im/server/internal/verify"
)

// VerificationRepo is the Postgres-backed verification code store. It is
// safe for concurrent use across process instances: issuance runs inside an
// advisory-lock transaction so the throttle check and the write are
// linearizable per identity, and consumption is a single atomic statement.
type VerificationRepo struct {
	db      *sql.DB
	ttl     time.Duration
	codeLen int
}

// NewVerificationRepo creates a Postgres verification code store. The TTL
// is both the code lifetime and the reissue throttle window.
func NewVerificationRepo(db *sql.DB, ttl time.Duration, codeLen int) *VerificationRepo {
	return &VerificationRepo{db: db, ttl: ttl, codeLen: codeLen}
}

// Issue generates a fresh code for the identity, superseding any expired
// record. Fails with verify.ErrAlreadyRegistered while an unexpired,
// unconsumed record exists.
func (r *VerificationRepo) Issue(ctx context.Context, identity string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Advisory lock: serialize issuance per identity so two concurrent
	// requests cannot both pass the throttle check. Released on
	// COMMIT/ROLLBACK.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, identity); err != nil {
		return "", fmt.Errorf("advisory lock: %w", err)
	}

	var outstanding int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verification_codes
		WHERE identity = $1 AND consumed_at IS NULL AND expires_at > now()
	`, identity).Scan(&outstanding)
	if err != nil {
		return "", fmt.Errorf("check outstanding code: %w", err)
	}
	if outstanding > 0 {
		return "", verify.ErrAlreadyRegistered
	}

	// Supersede expired leftovers (unique index: identity WHERE consumed_at
	// IS NULL). The last-issued code is the only valid one.
	if _, err := tx.ExecContext(ctx, `
		UPDATE verification_codes
		SET consumed_at = now()
		WHERE identity = $1 AND consumed_at IS NULL
	`, identity); err != nil {
		return "", fmt.Errorf("supersede expired codes: %w", err)
	}

	code, err := verify.GenerateCode(r.codeLen)
	if err != nil {
		return "", err
	}

	// Expiry on the database clock: the throttle check and the consume
	// statement compare against now(), so the window must be stamped by
	// the same clock.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO verification_codes (identity, code, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
	`, identity, code, r.ttl.Seconds()); err != nil {
		return "", fmt.Errorf("insert code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return code, nil
}

// Verify consumes the outstanding record iff the code matches exactly. The
// single UPDATE makes concurrent verifications of the same code mutually
// exclusive: at most one caller observes the row.
func (r *VerificationRepo) Verify(ctx context.Context, identity, code string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_codes
		SET consumed_at = now()
		WHERE identity = $1 AND code = $2 AND consumed_at IS NULL AND expires_at > now()
	`, identity, code)
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Latest returns the most recent record for an identity, consumed or not.
func (r *VerificationRepo) Latest(ctx context.Context, identity string) (model.VerificationRecord, error) {
	var rec model.VerificationRecord
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, identity, code, created_at, expires_at, consumed_at
		FROM verification_codes
		WHERE identity = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, identity).Scan(&idStr, &rec.Identity, &rec.Code, &rec.CreatedAt, &rec.ExpiresAt, &rec.ConsumedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.VerificationRecord{}, fmt.Errorf("no verification record: %w", err)
		}
		return model.VerificationRecord{}, fmt.Errorf("query verification record: %w", err)
	}
	rec.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.VerificationRecord{}, fmt.Errorf("parse record ID: %w", err)
	}
	return rec, nil
}
