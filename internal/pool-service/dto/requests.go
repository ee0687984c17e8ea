package dto

// ActionRequest é o envelope vindo do adapter da plataforma social: payload
// opaco (base64 de um JSON) que só o adapter sabe montar.
type ActionRequest struct {
	Payload string `json:"payload"`
}

// ActionPayload é o conteúdo decodificado de um "open" ou "join".
type ActionPayload struct {
	EventID    string `json:"event_id"`
	MatchID    string `json:"match_id,omitempty"` // default: event_id
	Bettor     string `json:"bettor"`
	Outcome    string `json:"outcome"` // "draw" | "home" | "away"
	StakeCents int64  `json:"stake_cents"`
}

// BatchPayload aplica várias apostas em sequência (best-effort sequencial:
// a primeira falha interrompe, as anteriores permanecem).
type BatchPayload struct {
	EventID string       `json:"event_id"`
	MatchID string       `json:"match_id,omitempty"`
	Entries []BatchEntry `json:"entries"`
}

type BatchEntry struct {
	Bettor     string `json:"bettor"`
	Outcome    string `json:"outcome"`
	StakeCents int64  `json:"stake_cents"`
}
