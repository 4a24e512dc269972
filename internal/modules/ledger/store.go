// README: Ledger store: append-only rows, per-owner lock for withdraw serialization.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"platera/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	e.ID = types.ID(uuid.NewString())
	_, err := s.db.Exec(ctx, insertEntrySQL, insertArgs(e)...)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// AppendWithdraw holds the owner's lock row FOR UPDATE so the balance read
// used for the insufficient-funds decision is the same one the insert is
// serialized against. Two concurrent withdrawals for one owner queue here.
func (s *Store) AppendWithdraw(ctx context.Context, e Entry) (Entry, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO balance_owner_locks (owner_kind, owner_id)
		VALUES ($1, $2)
		ON CONFLICT (owner_kind, owner_id) DO NOTHING`,
		string(e.Owner.Kind), string(e.Owner.ID),
	)
	if err != nil {
		return Entry{}, err
	}
	_, err = tx.Exec(ctx, `
		SELECT 1 FROM balance_owner_locks
		WHERE owner_kind = $1 AND owner_id = $2
		FOR UPDATE`,
		string(e.Owner.Kind), string(e.Owner.ID),
	)
	if err != nil {
		return Entry{}, err
	}

	balance, err := balanceInTx(ctx, tx, e.Owner)
	if err != nil {
		return Entry{}, err
	}
	if e.NetAmount.GreaterThan(balance) {
		return Entry{}, ErrInsufficientBalance
	}

	e.ID = types.ID(uuid.NewString())
	if _, err := tx.Exec(ctx, insertEntrySQL, insertArgs(e)...); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return e, nil
}

const insertEntrySQL = `
	INSERT INTO ledger_entries (
		id, owner_kind, owner_id, entry_type, status,
		amount, fee, net_amount, note,
		bank_name, bank_account, bank_code,
		gateway_ref, gateway_payload,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12,
		$13, $14,
		$15, $16
	)`

func insertArgs(e Entry) []any {
	return []any{
		string(e.ID), string(e.Owner.Kind), string(e.Owner.ID), string(e.Type), string(e.Status),
		e.Amount.StringFixed(2), e.Fee.StringFixed(2), e.NetAmount.StringFixed(2), e.Note,
		e.Bank.Name, e.Bank.Account, e.Bank.Code,
		e.GatewayRef, e.GatewayPayload,
		e.CreatedAt, e.UpdatedAt,
	}
}

// Finalize updates only the mutable fields of an entry.
func (s *Store) Finalize(ctx context.Context, entryID string, status EntryStatus, gatewayRef string, payload []byte) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE ledger_entries
		SET status = $1, gateway_ref = $2, gateway_payload = $3, updated_at = NOW()
		WHERE id = $4 AND status = 'processing'`,
		string(status), gatewayRef, payload, entryID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

const balanceSQL = `
	SELECT COALESCE(SUM(
		CASE
			WHEN entry_type = 'deposit'  AND status IN ('paid','success')      THEN net_amount
			WHEN entry_type = 'withdraw' AND status IN ('processing','success') THEN -net_amount
			ELSE 0
		END
	), 0)
	FROM ledger_entries
	WHERE owner_kind = $1 AND owner_id = $2`

func (s *Store) Balance(ctx context.Context, owner Owner) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRow(ctx, balanceSQL, string(owner.Kind), string(owner.ID)).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return parseAmount(raw)
}

func balanceInTx(ctx context.Context, tx pgx.Tx, owner Owner) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRow(ctx, balanceSQL, string(owner.Kind), string(owner.ID)).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return parseAmount(raw)
}

func (s *Store) List(ctx context.Context, owner Owner) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_kind, owner_id, entry_type, status,
		       amount, fee, net_amount, note,
		       bank_name, bank_account, bank_code,
		       gateway_ref, gateway_payload,
		       created_at, updated_at
		FROM ledger_entries
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY created_at ASC, id ASC`,
		string(owner.Kind), string(owner.ID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var amount, fee, net string
		err := rows.Scan(
			&e.ID, &e.Owner.Kind, &e.Owner.ID, &e.Type, &e.Status,
			&amount, &fee, &net, &e.Note,
			&e.Bank.Name, &e.Bank.Account, &e.Bank.Code,
			&e.GatewayRef, &e.GatewayPayload,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if e.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		if e.Fee, err = parseAmount(fee); err != nil {
			return nil, err
		}
		if e.NetAmount, err = parseAmount(net); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// parseAmount treats a malformed stored amount as a fatal data-integrity
// error; callers surface it, never retry it.
func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("ledger integrity: malformed amount " + raw)
	}
	return d, nil
}
