package engine

import "errors"

// Taxonomia de erros do motor. Todos são recuperáveis na borda da chamada:
// validações falham antes de qualquer efeito, e as operações de reembolso em
// lote só contabilizam transferências confirmadas, então a chamada pode ser
// repetida para retomar de onde parou.
var (
	ErrPoolNotFound         = errors.New("pool not found")
	ErrInvalidState         = errors.New("operation not allowed in current pool state")
	ErrStakeMismatch        = errors.New("wager amount differs from the pool fixed stake")
	ErrDuplicateBettor      = errors.New("bettor already holds a wager in this pool")
	ErrFundingFailed        = errors.New("custody transfer rejected")
	ErrUnknownRequest       = errors.New("unknown oracle correlation id")
	ErrDuplicateFulfillment = errors.New("oracle request already fulfilled")
	ErrNoWinners            = errors.New("reported outcome has no participants")
	ErrArithmeticBounds     = errors.New("amount or count out of bounds")
	ErrUnknownOutcome       = errors.New("unknown outcome")
)
