package events

import "time"

// OracleRequest é a mensagem publicada no tópico "oracle_requests".
// O oracle só devolve o correlation_id; o mapeamento correlation_id -> pool
// é responsabilidade de quem emitiu a requisição.
type OracleRequest struct {
	CorrelationID string    `json:"correlation_id"`
	MatchID       string    `json:"match_id"`
	ResultPath    string    `json:"result_path"` // ex: "res.match.winner"
	Times         int64     `json:"times"`       // fator de escala aplicado ao valor bruto
	RequestedAt   time.Time `json:"requested_at"`
}

// OracleFulfilled é a resposta do oracle, entregue em momento arbitrário
// após a requisição.
type OracleFulfilled struct {
	CorrelationID string    `json:"correlation_id"`
	Outcome       string    `json:"outcome"` // "draw" | "home" | "away"
	Raw           int64     `json:"raw,omitempty"`
	Ts            time.Time `json:"ts"`
}
