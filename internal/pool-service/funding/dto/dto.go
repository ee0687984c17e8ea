package dto

type DebitRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref"` // ex: "wager:{eventId}"
}

type CreditRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref"` // ex: "prize:{eventId}"
}

type TransferResponse struct {
	Status       string `json:"status"`
	BalanceCents int64  `json:"balance_cents"`
}
