package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NickKasten/posture/internal/crypto"
	"github.com/NickKasten/posture/internal/domain"
)

// PostgresCredentialRepo implements CredentialRepository.
type PostgresCredentialRepo struct {
	db  *pgxpool.Pool
	ids *snowflake.Node
}

var _ CredentialRepository = (*PostgresCredentialRepo)(nil)

// NewPostgresCredentialRepo wires the Postgres-backed credential store.
func NewPostgresCredentialRepo(pool *pgxpool.Pool, ids *snowflake.Node) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: pool, ids: ids}
}

const upsertCredentialSQL = `
INSERT INTO social_credentials (id, user_id, platform, encrypted_access_token, encrypted_refresh_token, token_expires_at, scopes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
ON CONFLICT (user_id, platform) DO UPDATE SET
	encrypted_access_token = EXCLUDED.encrypted_access_token,
	encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
	token_expires_at = EXCLUDED.token_expires_at,
	scopes = EXCLUDED.scopes,
	updated_at = now()
RETURNING id, user_id, platform, encrypted_access_token, encrypted_refresh_token, token_expires_at, scopes, created_at, updated_at`

// Upsert writes the credential row for (user, platform), replacing any
// previous tokens in one atomic statement.
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred domain.SocialCredential) (domain.SocialCredential, error) {
	if cred.ID == 0 {
		cred.ID = r.ids.Generate().Int64()
	}
	row := r.db.QueryRow(ctx, upsertCredentialSQL,
		cred.ID,
		cred.UserID,
		cred.Platform.String(),
		cred.EncryptedAccessToken,
		nullableString(cred.EncryptedRefreshToken),
		cred.TokenExpiresAt,
		cred.Scopes,
	)
	return scanCredential(row)
}

const selectCredentialSQL = `
SELECT id, user_id, platform, encrypted_access_token, encrypted_refresh_token, token_expires_at, scopes, created_at, updated_at
FROM social_credentials`

func (r *PostgresCredentialRepo) GetByUserAndPlatform(ctx context.Context, userID string, platform domain.Platform) (domain.SocialCredential, error) {
	row := r.db.QueryRow(ctx, selectCredentialSQL+` WHERE user_id = $1 AND platform = $2`, userID, platform.String())
	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SocialCredential{}, ErrCredentialNotFound
		}
		return domain.SocialCredential{}, fmt.Errorf("get credential: %w", err)
	}
	return cred, nil
}

func (r *PostgresCredentialRepo) ListByUser(ctx context.Context, userID string) ([]domain.SocialCredential, error) {
	rows, err := r.db.Query(ctx, selectCredentialSQL+` WHERE user_id = $1 ORDER BY platform`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []domain.SocialCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

func (r *PostgresCredentialRepo) Delete(ctx context.Context, userID string, platform domain.Platform) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM social_credentials WHERE user_id = $1 AND platform = $2`, userID, platform.String())
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// RotateAll walks every row, decrypting with the old cipher and re-sealing
// with the new one. Returns the number of rows rewritten.
func (r *PostgresCredentialRepo) RotateAll(ctx context.Context, old, new *crypto.Cipher) (int, error) {
	rows, err := r.db.Query(ctx, `SELECT id, encrypted_access_token, encrypted_refresh_token FROM social_credentials`)
	if err != nil {
		return 0, fmt.Errorf("rotate: list rows: %w", err)
	}
	defer rows.Close()

	type rotation struct {
		id      int64
		access  string
		refresh *string
	}
	var pending []rotation
	for rows.Next() {
		var rot rotation
		if err := rows.Scan(&rot.id, &rot.access, &rot.refresh); err != nil {
			return 0, fmt.Errorf("rotate: scan row: %w", err)
		}
		pending = append(pending, rot)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rotate: list rows: %w", err)
	}

	rotated := 0
	for _, rot := range pending {
		access, err := crypto.Rotate(old, new, rot.access)
		if err != nil {
			return rotated, fmt.Errorf("rotate row %d: %w", rot.id, err)
		}
		var refresh *string
		if rot.refresh != nil && *rot.refresh != "" {
			next, err := crypto.Rotate(old, new, *rot.refresh)
			if err != nil {
				return rotated, fmt.Errorf("rotate row %d: %w", rot.id, err)
			}
			refresh = &next
		}
		if _, err := r.db.Exec(ctx,
			`UPDATE social_credentials SET encrypted_access_token = $2, encrypted_refresh_token = $3, updated_at = now() WHERE id = $1`,
			rot.id, access, refresh,
		); err != nil {
			return rotated, fmt.Errorf("rotate row %d: %w", rot.id, err)
		}
		rotated++
	}
	return rotated, nil
}

func scanCredential(row pgx.Row) (domain.SocialCredential, error) {
	var (
		cred      domain.SocialCredential
		platform  string
		refresh   *string
		expiresAt *time.Time
	)
	if err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&platform,
		&cred.EncryptedAccessToken,
		&refresh,
		&expiresAt,
		&cred.Scopes,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	); err != nil {
		return domain.SocialCredential{}, err
	}
	cred.Platform = domain.Platform(platform)
	if refresh != nil {
		cred.EncryptedRefreshToken = *refresh
	}
	cred.TokenExpiresAt = expiresAt
	return cred, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
