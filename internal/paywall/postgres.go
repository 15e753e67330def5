package paywall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hoddukzoa12/openclaw/pkg/database"
	"github.com/hoddukzoa12/openclaw/pkg/money"
	"github.com/jackc/pgx/v5"
)

// PostgresStore is the durable Store backed by PostgreSQL.
type PostgresStore struct {
	db *database.Database
}

// NewPostgresStore creates a request store on top of the shared pool.
func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*PaymentRequest, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT id, session_key, amount_micros, network, pay_to, status,
		       tx_ref, created_at, expires_at
		FROM payment_requests
		WHERE id = $1
	`, id)

	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payment request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Put(ctx context.Context, req *PaymentRequest) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO payment_requests (
			id, session_key, amount_micros, network, pay_to, status,
			tx_ref, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			tx_ref = EXCLUDED.tx_ref
	`,
		req.ID,
		req.SessionKey,
		int64(req.Amount),
		req.Network,
		req.PayTo,
		string(req.Status),
		sql.NullString{String: req.TxRef, Valid: req.TxRef != ""},
		req.CreatedAt,
		req.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payment request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM payment_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment request: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*PaymentRequest, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, session_key, amount_micros, network, pay_to, status,
		       tx_ref, created_at, expires_at
		FROM payment_requests
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	defer rows.Close()

	var out []*PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*PaymentRequest, error) {
	var (
		req    PaymentRequest
		amount int64
		status string
		txRef  sql.NullString
	)
	err := row.Scan(
		&req.ID,
		&req.SessionKey,
		&amount,
		&req.Network,
		&req.PayTo,
		&status,
		&txRef,
		&req.CreatedAt,
		&req.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	req.Amount = money.Micros(amount)
	req.Status = Status(status)
	req.TxRef = txRef.String
	return &req, nil
}
