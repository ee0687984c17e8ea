package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
)

// Funding é a fronteira com o collaborator de custódia (wallet-service).
// Falhas aqui são erros normais e recuperáveis, nunca fatais para o motor.
type Funding interface {
	// TransferFrom move amountCents do holder para a conta de custódia.
	TransferFrom(ctx context.Context, holder string, amountCents int64, ref string) error
	// Transfer move amountCents da conta de custódia para o recipient.
	Transfer(ctx context.Context, recipient string, amountCents int64, ref string) error
}

// Engine é o dono exclusivo da contabilidade dos pools: total em custódia,
// stake fixo e sequências de participantes por resultado. Nenhum componente
// externo muta esse estado diretamente.
type Engine struct {
	log     *zap.Logger
	funding Funding

	mu    sync.RWMutex
	pools map[string]*pool
}

func New(log *zap.Logger, funding Funding) *Engine {
	return &Engine{
		log:     log,
		funding: funding,
		pools:   make(map[string]*pool),
	}
}

// getOrCreate devolve o pool do evento, criando-o em estado Open se ainda
// não existir.
func (e *Engine) getOrCreate(eventID, matchID string) *pool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pools[eventID]; ok {
		return p
	}
	p := newPool(eventID, matchID)
	e.pools[eventID] = p
	return p
}

func (e *Engine) get(eventID string) (*pool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pools[eventID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// PlaceWager valida e registra uma aposta de stake fixo.
//
// Disciplina de custódia: o débito no bettor acontece primeiro e a
// contabilidade só é tocada depois que a transferência confirma — uma
// transferência que não aconteceu nunca vira entrada no pool. Todas as
// validações precedem o débito, então um débito confirmado sempre é
// registrado.
func (e *Engine) PlaceWager(ctx context.Context, eventID, matchID, bettor string, outcome Outcome, amountCents int64) (Snapshot, error) {
	if !outcome.valid() {
		return Snapshot{}, ErrUnknownOutcome
	}
	if amountCents <= 0 {
		return Snapshot{}, fmt.Errorf("%w: amount must be positive", ErrArithmeticBounds)
	}
	if bettor == "" {
		return Snapshot{}, fmt.Errorf("%w: empty bettor", ErrArithmeticBounds)
	}

	p := e.getOrCreate(eventID, matchID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateOpen {
		return Snapshot{}, ErrInvalidState
	}
	// o primeiro stake registrado fixa o valor; depois disso é imutável
	if p.fixedStake != 0 && amountCents != p.fixedStake {
		return Snapshot{}, ErrStakeMismatch
	}
	if _, dup := p.byBettor[bettor]; dup {
		return Snapshot{}, ErrDuplicateBettor
	}
	if p.totalPool > math.MaxInt64-amountCents {
		return Snapshot{}, ErrArithmeticBounds
	}

	if err := e.funding.TransferFrom(ctx, bettor, amountCents, "wager:"+eventID); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrFundingFailed, err)
	}

	if p.fixedStake == 0 {
		p.fixedStake = amountCents
	}
	p.entries[outcome] = append(p.entries[outcome], bettor)
	p.byBettor[bettor] = outcome
	p.totalPool += amountCents

	e.log.Info("wager recorded",
		zap.String("eventId", eventID),
		zap.String("bettor", bettor),
		zap.String("outcome", outcome.String()),
		zap.Int64("totalPoolCents", p.totalPool),
	)
	return p.snapshotLocked(), nil
}

// BatchEntry é uma aposta dentro de um lote.
type BatchEntry struct {
	Bettor      string  `json:"bettor"`
	Outcome     Outcome `json:"-"`
	AmountCents int64   `json:"amount_cents"`
}

// PlaceWagerBatch aplica as entradas em ordem com política best-effort
// sequencial: cada entrada é resolvida de forma independente, a primeira
// falha interrompe o lote e é reportada com o índice, e as entradas já
// aplicadas permanecem — não há rollback do lote inteiro.
func (e *Engine) PlaceWagerBatch(ctx context.Context, eventID, matchID string, entries []BatchEntry) (applied int, err error) {
	for i, en := range entries {
		if _, werr := e.PlaceWager(ctx, eventID, matchID, en.Bettor, en.Outcome, en.AmountCents); werr != nil {
			return i, fmt.Errorf("batch entry %d (%s): %w", i, en.Bettor, werr)
		}
	}
	return len(entries), nil
}

// Snapshot devolve a visão somente-leitura do pool.
func (e *Engine) Snapshot(eventID string) (Snapshot, error) {
	p, err := e.get(eventID)
	if err != nil {
		return Snapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(), nil
}

// Participants devolve a sequência ordenada por chegada de um resultado.
func (e *Engine) Participants(eventID string, outcome Outcome) ([]string, error) {
	p, err := e.get(eventID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := p.entries[outcome]
	out := make([]string, len(seq))
	copy(out, seq)
	return out, nil
}

// PoolTotal devolve o total em custódia do pool, em centavos.
func (e *Engine) PoolTotal(eventID string) (int64, error) {
	p, err := e.get(eventID)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalPool, nil
}
