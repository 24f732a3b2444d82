package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shorttrack/apiserver/types"
)

// VerificationCodeRepository handles persistence for verification codes.
type VerificationCodeRepository struct {
	db *sql.DB
}

func NewVerificationCodeRepository(db *sql.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

func (r *VerificationCodeRepository) Create(ctx context.Context, code types.VerificationCode) (types.VerificationCode, error) {
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO verification_codes (id, purpose, target, code_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		code.ID,
		string(code.Purpose),
		code.Target,
		code.CodeHash,
		code.CreatedAt,
		code.ExpiresAt,
	); err != nil {
		return types.VerificationCode{}, mapWriteError(err)
	}
	return code, nil
}

// FindLatest returns the most recently created code for (purpose, target),
// whatever its state.
func (r *VerificationCodeRepository) FindLatest(ctx context.Context, purpose types.CodePurpose, target string) (types.VerificationCode, error) {
	const query = `
		SELECT id, purpose, target, code_hash, created_at, expires_at, consumed_at
		FROM verification_codes
		WHERE purpose = $1 AND target = $2
		ORDER BY created_at DESC
		LIMIT 1`
	return r.findOne(ctx, query, string(purpose), target)
}

// FindLatestActive returns the most recently created unconsumed code for
// (purpose, target) that has not expired at now.
func (r *VerificationCodeRepository) FindLatestActive(ctx context.Context, purpose types.CodePurpose, target string, now time.Time) (types.VerificationCode, error) {
	const query = `
		SELECT id, purpose, target, code_hash, created_at, expires_at, consumed_at
		FROM verification_codes
		WHERE purpose = $1 AND target = $2 AND consumed_at IS NULL AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`
	return r.findOne(ctx, query, string(purpose), target, now)
}

// MarkConsumed stamps consumed_at on an unconsumed code. A code that was
// already consumed yields ErrAlreadyConsumed.
func (r *VerificationCodeRepository) MarkConsumed(ctx context.Context, id uuid.UUID, now time.Time) error {
	const query = `
		UPDATE verification_codes
		SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, id, now)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyConsumed
	}
	return nil
}

func (r *VerificationCodeRepository) findOne(ctx context.Context, query string, args ...any) (types.VerificationCode, error) {
	var (
		code    types.VerificationCode
		purpose string
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(
		&code.ID,
		&purpose,
		&code.Target,
		&code.CodeHash,
		&code.CreatedAt,
		&code.ExpiresAt,
		&code.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.VerificationCode{}, ErrNotFound
		}
		return types.VerificationCode{}, err
	}
	code.Purpose = types.CodePurpose(purpose)
	return code, nil
}
