package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Tipos de lançamento do pool_journal
const (
	KindWager  = "WAGER"
	KindRefund = "REFUND"
	KindPayout = "PAYOUT"
	KindDust   = "DUST"
	KindState  = "STATE"
)

// Journal persiste a trilha de auditoria dos pools em Postgres. É best
// effort: uma falha de escrita é logada pelo chamador e nunca desfaz o
// estado do motor — a fonte de verdade contábil é o Engine.
type Journal struct{ db *sql.DB }

func NewJournal(db *sql.DB) *Journal { return &Journal{db: db} }

// Entry é um lançamento da trilha de auditoria.
type Entry struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Kind        string    `json:"kind"`
	Bettor      string    `json:"bettor,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Insert grava um lançamento no pool_journal.
func (j *Journal) Insert(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO pool_journal (id, event_id, kind, bettor, outcome, amount_cents, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
		uuid.NewString(), e.EventID, e.Kind, e.Bettor, e.Outcome, e.AmountCents, e.Detail,
	)
	return err
}

// ListByEvent devolve os lançamentos de um evento em ordem de criação.
func (j *Journal) ListByEvent(ctx context.Context, eventID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, event_id, kind, bettor, outcome, amount_cents, detail, created_at
		FROM pool_journal
		WHERE event_id=$1
		ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventID, &e.Kind, &e.Bettor, &e.Outcome, &e.AmountCents, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
