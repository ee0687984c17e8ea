package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BeginAwait faz a transição Locked -> AwaitingOracle e grava o correlation
// id pendente. É chamado pelo OracleBridge antes do publish da requisição;
// AbortAwait desfaz a transição se o publish falhar.
func (e *Engine) BeginAwait(eventID, correlationID string) error {
	p, err := e.get(eventID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateLocked {
		return ErrInvalidState
	}
	p.state = StateAwaitingOracle
	p.pendingRequestID = correlationID
	return nil
}

// AbortAwait compensa um BeginAwait cuja requisição não chegou a ser
// publicada, voltando o pool para Locked.
func (e *Engine) AbortAwait(eventID string) error {
	p, err := e.get(eventID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateAwaitingOracle {
		return ErrInvalidState
	}
	p.state = StateLocked
	p.pendingRequestID = ""
	return nil
}

// Settle distribui o pool entre os participantes do resultado reportado.
//
// prize = totalPool / winnerCount em divisão inteira; o resto (dust) fica em
// custódia e é reportado, nunca distribuído aqui. A contabilidade fecha
// primeiro: o pool vai para Settled e cada vencedor vira um Payout na fila;
// só então a fila é drenada contra o funding. Um crédito que falhe permanece
// na fila (RetryPayouts re-drena) — o totalPool só decrementa por crédito
// confirmado.
//
// Resultado sem participantes falha com ErrNoWinners e não muda nada; o pool
// fica recuperável pelo Cancel administrativo.
func (e *Engine) Settle(ctx context.Context, eventID string, winner Outcome) (SettleReport, error) {
	if !winner.valid() {
		return SettleReport{}, ErrUnknownOutcome
	}
	p, err := e.get(eventID)
	if err != nil {
		return SettleReport{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateAwaitingOracle {
		return SettleReport{}, ErrInvalidState
	}
	winners := p.entries[winner]
	if len(winners) == 0 {
		return SettleReport{}, ErrNoWinners
	}

	prize := p.totalPool / int64(len(winners))
	p.dust = p.totalPool - prize*int64(len(winners))

	w := winner
	p.winner = &w
	p.pendingRequestID = ""
	p.state = StateSettled
	for _, b := range winners {
		p.payouts = append(p.payouts, &Payout{Bettor: b, AmountCents: prize})
	}

	pending := e.drainPayoutsLocked(ctx, p)

	rep := SettleReport{
		EventID:        eventID,
		Winner:         winner,
		WinnerCount:    len(winners),
		PrizeCents:     prize,
		DustCents:      p.dust,
		PendingPayouts: pending,
	}
	for _, po := range p.payouts {
		rep.Payouts = append(rep.Payouts, *po)
	}

	e.log.Info("pool settled",
		zap.String("eventId", eventID),
		zap.String("winner", winner.String()),
		zap.Int("winnerCount", rep.WinnerCount),
		zap.Int64("prizeCents", prize),
		zap.Int64("dustCents", p.dust),
		zap.Int("pendingPayouts", pending),
	)
	return rep, nil
}

// drainPayoutsLocked tenta creditar cada payout ainda não pago; devolve
// quantos continuam pendentes. Exige p.mu já adquirido.
func (e *Engine) drainPayoutsLocked(ctx context.Context, p *pool) int {
	pending := 0
	for _, po := range p.payouts {
		if po.Paid {
			continue
		}
		if err := e.funding.Transfer(ctx, po.Bettor, po.AmountCents, "prize:"+p.eventID); err != nil {
			e.log.Warn("prize credit failed, payout stays queued",
				zap.String("eventId", p.eventID),
				zap.String("bettor", po.Bettor),
				zap.Error(err),
			)
			pending++
			continue
		}
		po.Paid = true
		p.totalPool -= po.AmountCents
	}
	return pending
}

// RetryPayouts re-drena a fila de payouts de um pool já liquidado; devolve
// quantos ainda ficaram pendentes.
func (e *Engine) RetryPayouts(ctx context.Context, eventID string) (pending int, err error) {
	p, gerr := e.get(eventID)
	if gerr != nil {
		return 0, gerr
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateSettled {
		return 0, ErrInvalidState
	}
	return e.drainPayoutsLocked(ctx, p), nil
}

// Cancel é o caminho administrativo para pools presos — requisição de oracle
// que nunca resolve, ou resultado sem vencedores. Devolve o stake fixo a cada
// participante retido, abandona o correlation id pendente (um fulfillment
// tardio passa a falhar com ErrUnknownRequest) e encerra o pool em Cancelled.
//
// Mesma disciplina do balanceamento: crédito confirmado antes de cada pop e
// decremento; uma falha interrompe com ErrFundingFailed deixando o estado
// coerente com os reembolsos que aconteceram, e a chamada pode ser repetida.
func (e *Engine) Cancel(ctx context.Context, eventID string) (CancelReport, error) {
	p, err := e.get(eventID)
	if err != nil {
		return CancelReport{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.terminal() {
		return CancelReport{}, ErrInvalidState
	}

	rep := CancelReport{EventID: eventID}
	for _, o := range allOutcomes {
		for len(p.entries[o]) > 0 {
			seq := p.entries[o]
			last := seq[len(seq)-1]

			if err := e.funding.Transfer(ctx, last, p.fixedStake, "cancel:"+eventID); err != nil {
				return rep, fmt.Errorf("%w: %v", ErrFundingFailed, err)
			}

			p.entries[o] = seq[:len(seq)-1]
			delete(p.byBettor, last)
			p.totalPool -= p.fixedStake
			rep.Refunds = append(rep.Refunds, Refund{Bettor: last, Outcome: o, AmountCents: p.fixedStake})
		}
	}

	rep.AbandonedRequestID = p.pendingRequestID
	p.pendingRequestID = ""
	p.state = StateCancelled

	e.log.Info("pool cancelled",
		zap.String("eventId", eventID),
		zap.Int("refunds", len(rep.Refunds)),
		zap.String("abandonedRequestId", rep.AbandonedRequestID),
	)
	return rep, nil
}
