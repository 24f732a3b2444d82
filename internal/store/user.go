package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shorttrack/apiserver/types"
)

const userColumns = `id, name, email, password_hash, phone, email_verified_at, phone_verified_at,
		is_active, totp_enabled, totp_secret, backup_codes, otp_code_hash, otp_expires_at,
		created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.findOne(ctx, query, strings.ToLower(email))
}

func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	return r.findOne(ctx, query, phone)
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.BackupCodes == nil {
		user.BackupCodes = []string{}
	}

	const query = `
		INSERT INTO users (name, email, password_hash, phone, email_verified_at, phone_verified_at,
			is_active, totp_enabled, totp_secret, backup_codes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.PasswordHash,
		nullString(user.Phone),
		user.EmailVerifiedAt,
		user.PhoneVerifiedAt,
		user.IsActive,
		user.TOTPEnabled,
		nullString(user.TOTPSecret),
		pq.Array(user.BackupCodes),
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

// Update applies the non-nil fields of patch and returns the updated user.
func (r *UserRepository) Update(ctx context.Context, id int64, patch types.UserPatch) (types.User, error) {
	sets := make([]string, 0, 10)
	args := make([]any, 0, 11)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}
	if patch.EmailVerifiedAt != nil {
		set("email_verified_at", *patch.EmailVerifiedAt)
	}
	if patch.PhoneVerifiedAt != nil {
		set("phone_verified_at", *patch.PhoneVerifiedAt)
	}
	if patch.IsActive != nil {
		set("is_active", *patch.IsActive)
	}
	if patch.TOTPEnabled != nil {
		set("totp_enabled", *patch.TOTPEnabled)
	}
	if patch.TOTPSecret != nil {
		set("totp_secret", nullString(*patch.TOTPSecret))
	}
	if patch.BackupCodes != nil {
		set("backup_codes", pq.Array(patch.BackupCodes))
	}
	if patch.OTP != nil {
		if patch.OTP.CodeHash == "" {
			set("otp_code_hash", nil)
			set("otp_expires_at", nil)
		} else {
			set("otp_code_hash", patch.OTP.CodeHash)
			set("otp_expires_at", patch.OTP.ExpiresAt)
		}
	}
	set("updated_at", time.Now())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)
	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

// ConsumeBackupCode removes digest from the user's backup codes. It returns
// ErrNotFound when the digest is not (or no longer) present.
func (r *UserRepository) ConsumeBackupCode(ctx context.Context, id int64, digest string) error {
	const query = `
		UPDATE users
		SET backup_codes = array_remove(backup_codes, $2),
			updated_at = $3
		WHERE id = $1 AND $2 = ANY(backup_codes)`
	return r.execOne(ctx, query, id, digest, time.Now())
}

// ClearOTP empties the SMS sign-in slot if it still holds codeHash.
func (r *UserRepository) ClearOTP(ctx context.Context, id int64, codeHash string) error {
	const query = `
		UPDATE users
		SET otp_code_hash = NULL,
			otp_expires_at = NULL,
			updated_at = $3
		WHERE id = $1 AND otp_code_hash = $2`
	return r.execOne(ctx, query, id, codeHash, time.Now())
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (types.User, error) {
	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (types.User, error) {
	var (
		user        types.User
		phone       sql.NullString
		totpSecret  sql.NullString
		otpCodeHash sql.NullString
		backupCodes []string
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&phone,
		&user.EmailVerifiedAt,
		&user.PhoneVerifiedAt,
		&user.IsActive,
		&user.TOTPEnabled,
		&totpSecret,
		pq.Array(&backupCodes),
		&otpCodeHash,
		&user.OTPExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	user.Phone = phone.String
	user.TOTPSecret = totpSecret.String
	user.OTPCodeHash = otpCodeHash.String
	user.BackupCodes = backupCodes
	return user, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
