// Package paystore keeps the history of LNURL payments in a SQLite database.
package paystore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ellemouton/lnurlpay"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"

	// Register the pure go sqlite driver.
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no payment matches a lookup.
var ErrNotFound = errors.New("payment not found")

// Store is a payment history backed by SQLite.
type Store struct {
	db *sql.DB
}

// A compile time check to ensure Store implements lnurlpay.Recorder.
var _ lnurlpay.Recorder = (*Store)(nil)

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)"+
		"&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	// SQLite handles one writer at a time, and an in-memory database only
	// lives as long as its single connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			flow_id         TEXT PRIMARY KEY,
			domain          TEXT NOT NULL,
			payment_request TEXT NOT NULL,
			payment_hash    TEXT NOT NULL,
			amount_msat     INTEGER NOT NULL,
			fee_msat        INTEGER NOT NULL DEFAULT 0,
			comment         TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			preimage        TEXT,
			success_action  TEXT,
			failure_reason  TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_hash
			ON payments(payment_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_created
			ON payments(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// RecordAttempt stores a new in-flight payment.
func (s *Store) RecordAttempt(ctx context.Context,
	rec *lnurlpay.PaymentRecord) error {

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (
			flow_id, domain, payment_request, payment_hash,
			amount_msat, comment, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FlowID.String(), rec.Domain, rec.PaymentRequest,
		rec.PaymentHash.String(), int64(rec.AmountMsat), rec.Comment,
		string(rec.Status), rec.CreatedAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

// RecordOutcome stores the final status of a payment.
func (s *Store) RecordOutcome(ctx context.Context,
	rec *lnurlpay.PaymentRecord) error {

	var preimage, action sql.NullString
	if rec.Preimage != nil {
		preimage = sql.NullString{
			String: rec.Preimage.String(),
			Valid:  true,
		}
	}
	if len(rec.SuccessAction) > 0 {
		action = sql.NullString{
			String: string(rec.SuccessAction),
			Valid:  true,
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, fee_msat = ?, preimage = ?,
			success_action = ?, failure_reason = ?, updated_at = ?
		WHERE flow_id = ?`,
		string(rec.Status), int64(rec.FeeMsat), preimage, action,
		rec.FailureReason, rec.UpdatedAt.UnixNano(),
		rec.FlowID.String(),
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// Payment returns the payment made by the given flow.
func (s *Store) Payment(ctx context.Context,
	flowID uuid.UUID) (*lnurlpay.PaymentRecord, error) {

	row := s.db.QueryRowContext(ctx, selectPayments+`
		WHERE flow_id = ?`, flowID.String(),
	)

	rec, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	return rec, err
}

// Payments returns up to limit payments, newest first.
func (s *Store) Payments(ctx context.Context,
	limit int) ([]*lnurlpay.PaymentRecord, error) {

	rows, err := s.db.QueryContext(ctx, selectPayments+`
		ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*lnurlpay.PaymentRecord
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

const selectPayments = `
	SELECT flow_id, domain, payment_request, payment_hash, amount_msat,
		fee_msat, comment, status, preimage, success_action,
		failure_reason, created_at, updated_at
	FROM payments`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row scanner) (*lnurlpay.PaymentRecord, error) {
	var (
		flowID, hash         string
		amount, fee          int64
		preimage, action     sql.NullString
		createdAt, updatedAt int64
		rec                  lnurlpay.PaymentRecord
		status               string
	)
	err := row.Scan(
		&flowID, &rec.Domain, &rec.PaymentRequest, &hash, &amount,
		&fee, &rec.Comment, &status, &preimage, &action,
		&rec.FailureReason, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.FlowID, err = uuid.Parse(flowID)
	if err != nil {
		return nil, fmt.Errorf("invalid flow id: %w", err)
	}

	rec.PaymentHash, err = lntypes.MakeHashFromStr(hash)
	if err != nil {
		return nil, fmt.Errorf("invalid payment hash: %w", err)
	}

	if preimage.Valid {
		b, err := hex.DecodeString(preimage.String)
		if err != nil {
			return nil, fmt.Errorf("invalid preimage: %w", err)
		}
		p, err := lntypes.MakePreimage(b)
		if err != nil {
			return nil, err
		}
		rec.Preimage = &p
	}

	if action.Valid {
		rec.SuccessAction = []byte(action.String)
	}

	rec.AmountMsat = lnwire.MilliSatoshi(amount)
	rec.FeeMsat = lnwire.MilliSatoshi(fee)
	rec.Status = lnurlpay.PaymentStatus(status)
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.UpdatedAt = time.Unix(0, updatedAt)

	return &rec, nil
}
