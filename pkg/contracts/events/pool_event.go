package events

// Tipos de evento publicados no tópico "pool_events"
const (
	PoolWagerPlaced     = "WAGER_PLACED"
	PoolLocked          = "LOCKED"
	PoolOracleRequested = "ORACLE_REQUESTED"
	PoolSettled         = "SETTLED"
	PoolCancelled       = "CANCELLED"
)

// PoolEvent registra uma mudança observável de um pool de apostas.
type PoolEvent struct {
	EventID        string `json:"event_id"`
	MatchID        string `json:"match_id,omitempty"`
	Kind           string `json:"kind"`
	Bettor         string `json:"bettor,omitempty"`
	Outcome        string `json:"outcome,omitempty"`
	AmountCents    int64  `json:"amount_cents,omitempty"`
	TotalPoolCents int64  `json:"total_pool_cents"`
	State          string `json:"state"`
	TsUnixMs       int64  `json:"ts_unix_ms"`
}
