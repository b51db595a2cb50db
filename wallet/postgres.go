package wallet

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

const (
	tableWallets      = "wallets"
	tableTransactions = "wallet_transactions"

	colParticipant  = "participant"
	colTxID         = "tx_id"
	colBalance      = "balance"
	colKind         = "kind"
	colAmount       = "amount"
	colBalanceAfter = "balance_after"

	kindDebit  = "debit"
	kindCredit = "credit"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	participant TEXT PRIMARY KEY,
	balance     BIGINT NOT NULL CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS wallet_transactions (
	id            BIGSERIAL PRIMARY KEY,
	tx_id         TEXT,
	participant   TEXT NOT NULL REFERENCES wallets (participant),
	kind          TEXT NOT NULL,
	amount        BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE wallet_transactions ADD COLUMN IF NOT EXISTS tx_id TEXT;
CREATE UNIQUE INDEX IF NOT EXISTS wallet_transactions_tx_id_key ON wallet_transactions (tx_id);`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres keeps balances in the wallets table and journals every movement
// in wallet_transactions. Debit and Credit each run in one transaction; the
// journal's unique tx_id makes a repeated movement a no-op.
type Postgres struct {
	pool    *pgxpool.Pool
	tx      trm.Manager
	getter  *trmpgx.CtxGetter
	initial int64
}

func NewPostgres(pool *pgxpool.Pool, initial int64) (*Postgres, error) {
	const op = "wallet.NewPostgres"

	m, err := manager.New(trmpgx.NewDefaultFactory(pool))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Postgres{
		pool:    pool,
		tx:      m,
		getter:  trmpgx.DefaultCtxGetter,
		initial: initial,
	}, nil
}

// Migrate creates the wallet tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	const op = "wallet.Postgres.Migrate"

	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Postgres) conn(ctx context.Context) trmpgx.Tr {
	return p.getter.DefaultTrOrDB(ctx, p.pool)
}

// ensure opens the participant's account with the initial balance.
func (p *Postgres) ensure(ctx context.Context, participant string) error {
	query, args, err := psql.Insert(tableWallets).
		Columns(colParticipant, colBalance).
		Values(participant, p.initial).
		Suffix("ON CONFLICT (" + colParticipant + ") DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	_, err = p.conn(ctx).Exec(ctx, query, args...)
	return err
}

func (p *Postgres) GetBalance(ctx context.Context, participant string) (int64, error) {
	const op = "wallet.Postgres.GetBalance"

	query, args, err := psql.Select(colBalance).
		From(tableWallets).
		Where(sq.Eq{colParticipant: participant}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var balance int64
	err = p.conn(ctx).QueryRow(ctx, query, args...).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := p.ensure(ctx, participant); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		return p.initial, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return balance, nil
}

func (p *Postgres) Debit(ctx context.Context, txID, participant string, amount int64) error {
	const op = "wallet.Postgres.Debit"

	if err := checkMove(txID, amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := p.apply(ctx, txID, participant, kindDebit, -amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Postgres) Credit(ctx context.Context, txID, participant string, amount int64) error {
	const op = "wallet.Postgres.Credit"

	if err := checkMove(txID, amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := p.apply(ctx, txID, participant, kindCredit, amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// apply moves delta on the participant's balance under a row lock and
// journals the movement. A txID already in the journal is skipped; the check
// runs after the lock so concurrent repeats serialize on the row.
func (p *Postgres) apply(ctx context.Context, txID, participant, kind string, delta int64) error {
	return p.tx.Do(ctx, func(txCtx context.Context) error {
		if err := p.ensure(txCtx, participant); err != nil {
			return err
		}

		query, args, err := psql.Select(colBalance).
			From(tableWallets).
			Where(sq.Eq{colParticipant: participant}).
			Suffix("FOR UPDATE").
			ToSql()
		if err != nil {
			return err
		}
		var balance int64
		if err := p.conn(txCtx).QueryRow(txCtx, query, args...).Scan(&balance); err != nil {
			return err
		}

		applied, err := p.journaled(txCtx, txID)
		if err != nil || applied {
			return err
		}

		after := balance + delta
		if after < 0 {
			return round.ErrInsufficientBalance
		}

		query, args, err = psql.Update(tableWallets).
			Set(colBalance, after).
			Where(sq.Eq{colParticipant: participant}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := p.conn(txCtx).Exec(txCtx, query, args...); err != nil {
			return err
		}

		amount := delta
		if amount < 0 {
			amount = -amount
		}
		query, args, err = psql.Insert(tableTransactions).
			Columns(colTxID, colParticipant, colKind, colAmount, colBalanceAfter).
			Values(txID, participant, kind, amount, after).
			ToSql()
		if err != nil {
			return err
		}
		_, err = p.conn(txCtx).Exec(txCtx, query, args...)
		return err
	})
}

func (p *Postgres) journaled(ctx context.Context, txID string) (bool, error) {
	query, args, err := psql.Select("1").
		From(tableTransactions).
		Where(sq.Eq{colTxID: txID}).
		ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = p.conn(ctx).QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
