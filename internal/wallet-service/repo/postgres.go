package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// CustodyUserID é a conta interna que guarda os stakes dos pools entre o
// débito dos apostadores e o crédito dos vencedores/reembolsos.
const CustodyUserID = "custody"

// Postgres implementa operações de carteira em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
)

// GetOrCreateWallet retorna o walletId e saldo de um usuário, criando a carteira se não existir
// Usa transação para garantir atomicidade
func (p *Postgres) GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	id, bal, err := getOrCreateTx(ctx, tx, userID)
	if err != nil {
		return "", 0, err
	}

	if err = tx.Commit(); err != nil {
		return "", 0, err
	}
	return id, bal, nil
}

func getOrCreateTx(ctx context.Context, tx *sql.Tx, userID string) (string, int64, error) {
	var id string
	var bal int64
	err := tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM wallets WHERE user_id=$1`, userID).Scan(&id, &bal)
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets(id, user_id, balance_cents, version) VALUES($1,$2,0,1)`,
			id, userID); err != nil {
			return "", 0, err
		}
		return id, 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return id, bal, nil
}

// Deposit incrementa o saldo da carteira e registra a operação no ledger
// Garante lock pessimista na linha da carteira
func (p *Postgres) Deposit(ctx context.Context, userID string, amount int64, externalRef string) (walletID string, newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	if _, _, err = getOrCreateTx(ctx, tx, userID); err != nil {
		return "", 0, err
	}

	var id string
	if err = tx.QueryRowContext(ctx, `SELECT id FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&id); err != nil {
		return "", 0, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`, amount, id); err != nil {
		return "", 0, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description) VALUES($1,'CREDIT',$2,$3)`,
		id, amount, "deposit:"+externalRef); err != nil {
		return "", 0, err
	}

	if err = tx.QueryRowContext(ctx, `SELECT balance_cents FROM wallets WHERE id=$1`, id).Scan(&newBalance); err != nil {
		return "", 0, err
	}

	if err = tx.Commit(); err != nil {
		return "", 0, err
	}
	return id, newBalance, nil
}

// Debit move amount do usuário para a conta de custódia (transferFrom).
// Idempotente por (wallet, 'DEBIT', external_ref): uma repetição não move
// fundos de novo. Lock pessimista em ordem fixa (usuário, depois custódia)
// para evitar deadlock entre transferências concorrentes.
func (p *Postgres) Debit(ctx context.Context, userID string, amount int64, externalRef string) (newBalance int64, applied bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var walletID string
	var balance int64
	if err = tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&walletID, &balance); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, ErrNotFound
		}
		return 0, false, err
	}

	// Idempotência: transferência já aplicada não move fundos de novo
	var exists string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM wallet_transfers WHERE wallet_id=$1 AND direction='DEBIT' AND external_ref=$2`,
		walletID, externalRef).Scan(&exists)
	if err == nil {
		return balance, false, tx.Commit()
	} else if err != sql.ErrNoRows {
		return 0, false, err
	}

	if balance < amount {
		return 0, false, ErrInsufficientFunds
	}

	custodyID, _, err := getOrCreateTx(ctx, tx, CustodyUserID)
	if err != nil {
		return 0, false, err
	}
	if _, err = tx.ExecContext(ctx, `SELECT id FROM wallets WHERE id=$1 FOR UPDATE`, custodyID); err != nil {
		return 0, false, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE wallets SET balance_cents = balance_cents - $1, version = version + 1 WHERE id=$2`, amount, walletID); err != nil {
		return 0, false, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`, amount, custodyID); err != nil {
		return 0, false, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_transfers(id, wallet_id, direction, external_ref, amount_cents) VALUES($1,$2,'DEBIT',$3,$4)`,
		uuid.NewString(), walletID, externalRef, amount); err != nil {
		return 0, false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description) VALUES($1,'DEBIT',$2,$3)`,
		walletID, amount, "to-custody:"+externalRef); err != nil {
		return 0, false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description) VALUES($1,'CREDIT',$2,$3)`,
		custodyID, amount, "from:"+userID+":"+externalRef); err != nil {
		return 0, false, err
	}

	if err = tx.QueryRowContext(ctx, `SELECT balance_cents FROM wallets WHERE id=$1`, walletID).Scan(&newBalance); err != nil {
		return 0, false, err
	}

	if err = tx.Commit(); err != nil {
		return 0, false, err
	}
	return newBalance, true, nil
}

// Credit move amount da conta de custódia para o usuário (transfer).
// Idempotente por (wallet, 'CREDIT', external_ref); cria a carteira do
// usuário se ainda não existir.
func (p *Postgres) Credit(ctx context.Context, userID string, amount int64, externalRef string) (newBalance int64, applied bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	walletID, balance, err := getOrCreateTx(ctx, tx, userID)
	if err != nil {
		return 0, false, err
	}
	if err = tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM wallets WHERE id=$1 FOR UPDATE`, walletID).Scan(&walletID, &balance); err != nil {
		return 0, false, err
	}

	var exists string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM wallet_transfers WHERE wallet_id=$1 AND direction='CREDIT' AND external_ref=$2`,
		walletID, externalRef).Scan(&exists)
	if err == nil {
		return balance, false, tx.Commit()
	} else if err != sql.ErrNoRows {
		return 0, false, err
	}

	var custodyID string
	var custodyBalance int64
	if err = tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM wallets WHERE user_id=$1 FOR UPDATE`, CustodyUserID).Scan(&custodyID, &custodyBalance); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, ErrInsufficientFunds // custódia nunca recebeu nada
		}
		return 0, false, err
	}
	if custodyBalance < amount {
		return 0, false, ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx, `UPDATE wallets SET balance_cents = balance_cents - $1, version = version + 1 WHERE id=$2`, amount, custodyID); err != nil {
		return 0, false, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`, amount, walletID); err != nil {
		return 0, false, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_transfers(id, wallet_id, direction, external_ref, amount_cents) VALUES($1,$2,'CREDIT',$3,$4)`,
		uuid.NewString(), walletID, externalRef, amount); err != nil {
		return 0, false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description) VALUES($1,'DEBIT',$2,$3)`,
		custodyID, amount, "to:"+userID+":"+externalRef); err != nil {
		return 0, false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description) VALUES($1,'CREDIT',$2,$3)`,
		walletID, amount, "from-custody:"+externalRef); err != nil {
		return 0, false, err
	}

	if err = tx.QueryRowContext(ctx, `SELECT balance_cents FROM wallets WHERE id=$1`, walletID).Scan(&newBalance); err != nil {
		return 0, false, err
	}

	if err = tx.Commit(); err != nil {
		return 0, false, err
	}
	return newBalance, true, nil
}
