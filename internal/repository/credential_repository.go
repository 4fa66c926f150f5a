package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/storefront-api/internal/models"
)

// ErrRecordSuperseded is returned by Supersede when the source record was
// already retired by a concurrent renewal, logout or revocation.
var ErrRecordSuperseded = errors.New("credential record already superseded")

const credentialColumns = `id, user_id, token, expires_at, expired, revoked, revoked_at, refresh_cycles, issued_at, parent_id, ip_address, user_agent, created_at`

// CredentialRepository is the credential ledger. Every state change is a
// single conditional statement or a transaction serialised on the owning
// user row, so a cancelled request never leaves a half-renewed record.
type CredentialRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewCredentialRepository constructs the ledger.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Insert persists a record as-is.
func (r *CredentialRepository) Insert(ctx context.Context, rec *models.CredentialRecord) error {
	return r.insert(ctx, r.db, rec)
}

func (r *CredentialRepository) insert(ctx context.Context, exec sqlx.ExtContext, rec *models.CredentialRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = rec.CreatedAt
	}
	const query = `INSERT INTO credential_records (id, user_id, token, expires_at, expired, revoked, revoked_at, refresh_cycles, issued_at, parent_id, ip_address, user_agent, created_at) VALUES (:id, :user_id, :token, :expires_at, :expired, :revoked, :revoked_at, :refresh_cycles, :issued_at, :parent_id, :ip_address, :user_agent, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, rec); err != nil {
		return fmt.Errorf("insert credential record: %w", err)
	}
	return nil
}

// FindLatestNonExpired returns the principal's most recently issued record
// that has not been revoked. The record may have lapsed; callers compare
// ExpiresAt themselves.
func (r *CredentialRepository) FindLatestNonExpired(ctx context.Context, userID string) (*models.CredentialRecord, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credential_records WHERE user_id = $1 AND revoked = FALSE ORDER BY issued_at DESC LIMIT 1`
	var rec models.CredentialRecord
	if err := r.db.GetContext(ctx, &rec, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest credential record: %w", err)
	}
	return &rec, nil
}

// FindByID returns a record by identifier.
func (r *CredentialRepository) FindByID(ctx context.Context, id string) (*models.CredentialRecord, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credential_records WHERE id = $1 LIMIT 1`
	var rec models.CredentialRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find credential record: %w", err)
	}
	return &rec, nil
}

// ListByPrincipal returns the newest records for a principal.
func (r *CredentialRepository) ListByPrincipal(ctx context.Context, userID string, limit int) ([]models.CredentialRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM credential_records WHERE user_id = $1 ORDER BY issued_at DESC LIMIT %d`, credentialColumns, limit)
	var records []models.CredentialRecord
	if err := r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("list credential records: %w", err)
	}
	return records, nil
}

// MarkExpiredIfNotExpired retires a record. Zero affected rows means someone
// else already retired it.
func (r *CredentialRepository) MarkExpiredIfNotExpired(ctx context.Context, id string) (int64, error) {
	return r.retire(ctx, r.db, id)
}

func (r *CredentialRepository) retire(ctx context.Context, exec sqlx.ExecerContext, id string) (int64, error) {
	const query = `UPDATE credential_records SET revoked = TRUE, expired = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	result, err := exec.ExecContext(ctx, query, id, r.now())
	if err != nil {
		return 0, fmt.Errorf("retire credential record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retire credential record rows affected: %w", err)
	}
	return affected, nil
}

// BulkExpireByPrincipal retires every live record the principal owns.
func (r *CredentialRepository) BulkExpireByPrincipal(ctx context.Context, userID string) (int64, error) {
	return r.bulkRetire(ctx, r.db, userID)
}

func (r *CredentialRepository) bulkRetire(ctx context.Context, exec sqlx.ExecerContext, userID string) (int64, error) {
	const query = `UPDATE credential_records SET revoked = TRUE, expired = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	result, err := exec.ExecContext(ctx, query, userID, r.now())
	if err != nil {
		return 0, fmt.Errorf("revoke principal credential records: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke principal credential records rows affected: %w", err)
	}
	return affected, nil
}

// MarkLapsed flags a record whose expiry has passed. It is a no-op for
// records that are already flagged or still within their lifetime.
func (r *CredentialRepository) MarkLapsed(ctx context.Context, id string) error {
	const query = `UPDATE credential_records SET expired = TRUE WHERE id = $1 AND expired = FALSE AND expires_at <= $2`
	if _, err := r.db.ExecContext(ctx, query, id, r.now()); err != nil {
		return fmt.Errorf("mark credential record lapsed: %w", err)
	}
	return nil
}

// ExpireLapsed flags every record past its expiry. Re-running it is a no-op.
func (r *CredentialRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE credential_records SET expired = TRUE WHERE expired = FALSE AND expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed credential records: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire lapsed credential records rows affected: %w", err)
	}
	return affected, nil
}

// ExpireLapsedForPrincipal is ExpireLapsed scoped to one principal.
func (r *CredentialRepository) ExpireLapsedForPrincipal(ctx context.Context, userID string, now time.Time) (int64, error) {
	const query = `UPDATE credential_records SET expired = TRUE WHERE user_id = $1 AND expired = FALSE AND expires_at <= $2`
	result, err := r.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed principal credential records: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire lapsed principal credential records rows affected: %w", err)
	}
	return affected, nil
}

// Issue revokes every live record of the principal and inserts rec as the
// single current one. It returns how many records were revoked.
func (r *CredentialRepository) Issue(ctx context.Context, rec *models.CredentialRecord) (revoked int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin credential issue: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockPrincipal(ctx, tx, rec.UserID); err != nil {
		return 0, err
	}
	if revoked, err = r.bulkRetire(ctx, tx, rec.UserID); err != nil {
		return 0, err
	}
	if err = r.insert(ctx, tx, rec); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credential issue: %w", err)
	}
	return revoked, nil
}

// Supersede retires oldID and inserts successor in one transaction. When
// oldID was already retired nothing is written and ErrRecordSuperseded is
// returned, so concurrent renewals of one record yield a single successor.
func (r *CredentialRepository) Supersede(ctx context.Context, oldID string, successor *models.CredentialRecord) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credential renewal: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockPrincipal(ctx, tx, successor.UserID); err != nil {
		return err
	}
	affected, err := r.retire(ctx, tx, oldID)
	if err != nil {
		return err
	}
	if affected == 0 {
		err = ErrRecordSuperseded
		return err
	}
	if err = r.insert(ctx, tx, successor); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit credential renewal: %w", err)
	}
	return nil
}

// lockPrincipal serialises issuance and renewal per principal so the
// single-current-record invariant holds under concurrent logins.
func lockPrincipal(ctx context.Context, tx *sqlx.Tx, userID string) error {
	const query = `SELECT id FROM users WHERE id = $1 FOR UPDATE`
	var id string
	if err := tx.GetContext(ctx, &id, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock principal: %w", err)
	}
	return nil
}
