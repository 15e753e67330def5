package allowance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hoddukzoa12/openclaw/pkg/database"
	"github.com/hoddukzoa12/openclaw/pkg/money"
	"github.com/jackc/pgx/v5"
)

// PostgresStore is the durable Store backed by PostgreSQL.
type PostgresStore struct {
	db *database.Database
}

// NewPostgresStore creates an authorization store on top of the shared pool.
func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID, address string) (*Authorization, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT user_id, wallet_address, authorized_micros, spent_micros,
		       permit_signature, created_at, expires_at
		FROM allowances
		WHERE user_id = $1 AND wallet_address = $2
	`, userID, strings.ToLower(address))

	var (
		auth       Authorization
		authorized int64
		spent      int64
		sig        sql.NullString
	)
	err := row.Scan(
		&auth.UserID,
		&auth.WalletAddress,
		&authorized,
		&spent,
		&sig,
		&auth.CreatedAt,
		&auth.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAuthorizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query authorization: %w", err)
	}

	auth.Authorized = money.Micros(authorized)
	auth.Spent = money.Micros(spent)
	auth.PermitSignature = sig.String
	return &auth, nil
}

func (s *PostgresStore) Put(ctx context.Context, auth *Authorization) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO allowances (
			user_id, wallet_address, authorized_micros, spent_micros,
			permit_signature, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, wallet_address) DO UPDATE SET
			authorized_micros = EXCLUDED.authorized_micros,
			spent_micros      = EXCLUDED.spent_micros,
			permit_signature  = EXCLUDED.permit_signature,
			created_at        = EXCLUDED.created_at,
			expires_at        = EXCLUDED.expires_at
	`,
		auth.UserID,
		strings.ToLower(auth.WalletAddress),
		int64(auth.Authorized),
		int64(auth.Spent),
		sql.NullString{String: auth.PermitSignature, Valid: auth.PermitSignature != ""},
		auth.CreatedAt,
		auth.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert authorization: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, address string) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		DELETE FROM allowances WHERE user_id = $1 AND wallet_address = $2
	`, userID, strings.ToLower(address))
	if err != nil {
		return false, fmt.Errorf("failed to delete authorization: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
