package dto

import "github.com/radieske/pool-bet-platform-poc/internal/pool-service/engine"

type PoolResponse struct {
	Pool engine.Snapshot `json:"pool"`
}

type BatchResponse struct {
	Applied int             `json:"applied"`
	Error   string          `json:"error,omitempty"`
	Pool    engine.Snapshot `json:"pool"`
}

type LockResponse struct {
	Report engine.BalanceReport `json:"report"`
	Pool   engine.Snapshot      `json:"pool"`
}

type RequestSettlementResponse struct {
	CorrelationID string          `json:"correlation_id"`
	Pool          engine.Snapshot `json:"pool"`
}

type RetryPayoutsResponse struct {
	PendingPayouts int             `json:"pending_payouts"`
	Pool           engine.Snapshot `json:"pool"`
}

type CancelResponse struct {
	Report engine.CancelReport `json:"report"`
	Pool   engine.Snapshot     `json:"pool"`
}
