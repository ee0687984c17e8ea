package dto

type WalletResponse struct {
	UserID       string `json:"userId"`
	WalletID     string `json:"walletId"`
	BalanceCents int64  `json:"balance_cents"`
}

type TransferResponse struct {
	Status       string `json:"status"` // APPLIED | ALREADY_APPLIED
	BalanceCents int64  `json:"balance_cents"`
}
