package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/orderflow/internal/payments/vault"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const credentialColumns = `
	id, seller_id, provider_user, access_token, refresh_token, scope, expires_at, active, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Active(ctx context.Context) (*vault.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM payment_credentials WHERE active`

	credential, err := scanCredential(s.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vault.ErrNoActiveCredential
		}
		return nil, fmt.Errorf("select active credential: %w", err)
	}
	return credential, nil
}

// Activate deactivates the previous credential and inserts the new one in a
// single transaction; the partial unique index on active backs it up.
func (s *Store) Activate(ctx context.Context, credential vault.Credential) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE payment_credentials
		SET active = FALSE, updated_at = $1
		WHERE active`, credential.UpdatedAt); err != nil {
		return fmt.Errorf("deactivate previous credential: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO payment_credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9)`,
		credential.ID,
		credential.SellerID,
		credential.ProviderUserID,
		credential.AccessToken,
		credential.RefreshToken,
		credential.Scope,
		credential.ExpiresAt,
		credential.CreatedAt,
		credential.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit credential activation: %w", err)
	}
	return nil
}

func (s *Store) UpdateTokens(ctx context.Context, credential vault.Credential) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE payment_credentials
		SET access_token = $2, refresh_token = $3, scope = $4, expires_at = $5, updated_at = $6
		WHERE id = $1 AND active`,
		credential.ID,
		credential.AccessToken,
		credential.RefreshToken,
		credential.Scope,
		credential.ExpiresAt,
		credential.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update credential tokens: %w", err)
	}
	if result.RowsAffected() == 0 {
		return vault.ErrNoActiveCredential
	}
	return nil
}

func (s *Store) DeleteActive(ctx context.Context) (*vault.Credential, error) {
	query := `DELETE FROM payment_credentials WHERE active RETURNING ` + credentialColumns

	credential, err := scanCredential(s.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vault.ErrNoActiveCredential
		}
		return nil, fmt.Errorf("delete active credential: %w", err)
	}
	return credential, nil
}

func scanCredential(row pgx.Row) (*vault.Credential, error) {
	var c vault.Credential
	if err := row.Scan(
		&c.ID,
		&c.SellerID,
		&c.ProviderUserID,
		&c.AccessToken,
		&c.RefreshToken,
		&c.Scope,
		&c.ExpiresAt,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
