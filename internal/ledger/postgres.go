package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hoddukzoa12/openclaw/pkg/database"
	"github.com/jackc/pgx/v5"
)

// PostgresStore is the durable Store backed by PostgreSQL.
type PostgresStore struct {
	db *database.Database
}

// NewPostgresStore creates a session store on top of the shared pool.
func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Session, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT session_key, channel, user_id, message_count, paid_message_count,
		       last_tx_ref, last_paid_at, pending_payment_id, wallet_address,
		       created_at, updated_at
		FROM sessions
		WHERE session_key = $1
	`, key)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Put(ctx context.Context, session *Session) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO sessions (
			session_key, channel, user_id, message_count, paid_message_count,
			last_tx_ref, last_paid_at, pending_payment_id, wallet_address,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (session_key) DO UPDATE SET
			message_count      = EXCLUDED.message_count,
			paid_message_count = EXCLUDED.paid_message_count,
			last_tx_ref        = EXCLUDED.last_tx_ref,
			last_paid_at       = EXCLUDED.last_paid_at,
			pending_payment_id = EXCLUDED.pending_payment_id,
			wallet_address     = EXCLUDED.wallet_address,
			updated_at         = NOW()
	`,
		session.Key,
		session.Channel,
		session.UserID,
		session.MessageCount,
		session.PaidMessageCount,
		nullString(session.LastTxRef),
		nullTime(session.LastPaidAt),
		nullString(session.PendingPaymentID),
		nullString(session.WalletAddress),
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT session_key, channel, user_id, message_count, paid_message_count,
		       last_tx_ref, last_paid_at, pending_payment_id, wallet_address,
		       created_at, updated_at
		FROM sessions
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess      Session
		txRef     sql.NullString
		paidAt    sql.NullTime
		pendingID sql.NullString
		wallet    sql.NullString
	)
	err := row.Scan(
		&sess.Key,
		&sess.Channel,
		&sess.UserID,
		&sess.MessageCount,
		&sess.PaidMessageCount,
		&txRef,
		&paidAt,
		&pendingID,
		&wallet,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.LastTxRef = txRef.String
	sess.LastPaidAt = paidAt.Time
	sess.PendingPaymentID = pendingID.String
	sess.WalletAddress = wallet.String
	return &sess, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
