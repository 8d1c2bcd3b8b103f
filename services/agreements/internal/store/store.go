// Package store persists agreements, their receipts and their event log.
// Terms are immutable rows; receipts evolve only through merges taken
// under a row lock.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"actionlane/pkg/agreement"
)

var ErrNotFound = errors.New("agreement not found")

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// CreateAgreement writes the terms and the initial receipt in one
// transaction so no agreement is ever visible without a receipt.
func (s *Store) CreateAgreement(ctx context.Context, t agreement.Terms) error {
	terms, err := json.Marshal(t)
	if err != nil {
		return err
	}
	rcpt, err := json.Marshal(agreement.NewReceipt(t))
	if err != nil {
		return err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO agreements(agreement_id,creator,counterparty,terms_hash,terms)
VALUES($1,$2,$3,$4,$5::jsonb)`, agreementRow(t, terms)...); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO agreement_receipts(agreement_id,receipt)
VALUES($1,$2::jsonb)`, t.ID, string(rcpt)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// agreementRow is the positional column set for the agreements insert:
// id, creator, counterparty, hash, terms document.
func agreementRow(t agreement.Terms, terms []byte) []any {
	return []any{t.ID, t.CreatedBy, t.Counterparty(), t.Hash, string(terms)}
}

func (s *Store) GetAgreement(ctx context.Context, id string) (agreement.Terms, error) {
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT terms FROM agreements WHERE agreement_id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return agreement.Terms{}, ErrNotFound
	}
	if err != nil {
		return agreement.Terms{}, err
	}
	var t agreement.Terms
	if err := json.Unmarshal(raw, &t); err != nil {
		return agreement.Terms{}, err
	}
	return t, nil
}

func (s *Store) GetReceipt(ctx context.Context, id string) (agreement.Receipt, error) {
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT receipt FROM agreement_receipts WHERE agreement_id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return agreement.Receipt{}, ErrNotFound
	}
	if err != nil {
		return agreement.Receipt{}, err
	}
	var r agreement.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return agreement.Receipt{}, err
	}
	return r, nil
}

// MergeReceipt applies fn to the stored receipt under FOR UPDATE so two
// concurrent signers serialize instead of clobbering each other. fn
// returning an error aborts with no write.
func (s *Store) MergeReceipt(ctx context.Context, id string, fn func(agreement.Receipt) (agreement.Patch, error)) (agreement.Receipt, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return agreement.Receipt{}, err
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT receipt FROM agreement_receipts WHERE agreement_id=$1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return agreement.Receipt{}, ErrNotFound
	}
	if err != nil {
		return agreement.Receipt{}, err
	}
	var cur agreement.Receipt
	if err := json.Unmarshal(raw, &cur); err != nil {
		return agreement.Receipt{}, err
	}

	patch, err := fn(cur)
	if err != nil {
		return agreement.Receipt{}, err
	}
	merged := agreement.ApplyPatch(cur, patch)
	out, err := json.Marshal(merged)
	if err != nil {
		return agreement.Receipt{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE agreement_receipts SET receipt=$1::jsonb, updated_at=now() WHERE agreement_id=$2`, string(out), id); err != nil {
		return agreement.Receipt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return agreement.Receipt{}, err
	}
	return merged, nil
}

func (s *Store) AddEvent(ctx context.Context, agreementID, typ, actor string, payload map[string]any) error {
	b, _ := json.Marshal(payload)
	_, err := s.DB.Exec(ctx, `INSERT INTO agreement_events(agreement_id,type,actor,payload) VALUES($1,$2,$3,$4::jsonb)`,
		agreementID, typ, actor, string(b))
	return err
}

func (s *Store) ListEvents(ctx context.Context, agreementID string) ([]map[string]any, error) {
	rows, err := s.DB.Query(ctx, `SELECT type,actor,occurred_at,payload FROM agreement_events WHERE agreement_id=$1 ORDER BY occurred_at ASC`, agreementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		var typ, actor string
		var at time.Time
		var payload []byte
		if err := rows.Scan(&typ, &actor, &at, &payload); err != nil {
			return nil, err
		}
		var obj any
		_ = json.Unmarshal(payload, &obj)
		out = append(out, map[string]any{"type": typ, "actor": actor, "at": at.Format(time.RFC3339), "payload": obj})
	}
	return out, rows.Err()
}
