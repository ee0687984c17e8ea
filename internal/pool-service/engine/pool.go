package engine

import "sync"

// pool é o registro contábil de um evento de apostas. Todo acesso passa pelo
// mutex do próprio pool: cada operação mutadora é atômica por evento, e
// eventos distintos seguem independentes entre si.
type pool struct {
	mu sync.Mutex

	eventID    string
	matchID    string
	fixedStake int64 // centavos; fixado pela primeira aposta, imutável depois
	totalPool  int64 // centavos sob custódia deste pool

	state            State
	pendingRequestID string

	// sequências de participantes por resultado, em ordem de chegada;
	// a ordem determina quem é reembolsado primeiro no trim (LIFO)
	entries  map[Outcome][]string
	byBettor map[string]Outcome

	winner  *Outcome
	payouts []*Payout // fila de créditos pós-settlement
	dust    int64     // resto da divisão inteira, fica em custódia
}

// Payout é um crédito devido a um vencedor. Entra na fila no settlement e é
// marcado como pago quando a transferência de custódia confirma.
type Payout struct {
	Bettor      string `json:"bettor"`
	AmountCents int64  `json:"amount_cents"`
	Paid        bool   `json:"paid"`
}

// Refund registra um stake devolvido durante o balanceamento ou cancelamento.
type Refund struct {
	Bettor      string  `json:"bettor"`
	Outcome     Outcome `json:"-"`
	AmountCents int64   `json:"amount_cents"`
}

// Snapshot é a visão somente-leitura de um pool, usada pela API, pelo cache
// Redis e pelos testes.
type Snapshot struct {
	EventID          string         `json:"event_id"`
	MatchID          string         `json:"match_id"`
	FixedStakeCents  int64          `json:"fixed_stake_cents"`
	TotalPoolCents   int64          `json:"total_pool_cents"`
	State            string         `json:"state"`
	Counts           map[string]int `json:"counts"`
	PendingRequestID string         `json:"pending_request_id,omitempty"`
	Winner           string         `json:"winner,omitempty"`
	DustCents        int64          `json:"dust_cents,omitempty"`
	PendingPayouts   int            `json:"pending_payouts,omitempty"`
}

// BalanceReport descreve o resultado de um LockAndBalance.
type BalanceReport struct {
	EventID      string   `json:"event_id"`
	Refunds      []Refund `json:"refunds"`
	CountPerSide int      `json:"count_per_side"`
}

// SettleReport descreve o resultado de um Settle.
type SettleReport struct {
	EventID        string   `json:"event_id"`
	Winner         Outcome  `json:"-"`
	WinnerCount    int      `json:"winner_count"`
	PrizeCents     int64    `json:"prize_cents"`
	DustCents      int64    `json:"dust_cents"`
	Payouts        []Payout `json:"payouts"`
	PendingPayouts int      `json:"pending_payouts"`
}

// CancelReport descreve o resultado de um Cancel administrativo.
type CancelReport struct {
	EventID            string   `json:"event_id"`
	Refunds            []Refund `json:"refunds"`
	AbandonedRequestID string   `json:"abandoned_request_id,omitempty"`
}

func newPool(eventID, matchID string) *pool {
	return &pool{
		eventID:  eventID,
		matchID:  matchID,
		state:    StateOpen,
		entries:  make(map[Outcome][]string),
		byBettor: make(map[string]Outcome),
	}
}

// snapshotLocked monta a visão externa; exige p.mu já adquirido.
func (p *pool) snapshotLocked() Snapshot {
	counts := make(map[string]int, len(allOutcomes))
	for _, o := range allOutcomes {
		counts[o.String()] = len(p.entries[o])
	}
	s := Snapshot{
		EventID:          p.eventID,
		MatchID:          p.matchID,
		FixedStakeCents:  p.fixedStake,
		TotalPoolCents:   p.totalPool,
		State:            p.state.String(),
		Counts:           counts,
		PendingRequestID: p.pendingRequestID,
		DustCents:        p.dust,
	}
	if p.winner != nil {
		s.Winner = p.winner.String()
	}
	for _, po := range p.payouts {
		if !po.Paid {
			s.PendingPayouts++
		}
	}
	return s
}
