package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LockAndBalance fecha o pool para novas apostas e equaliza as contagens dos
// resultados competidores (home e away; draw fica fora da comparação),
// reembolsando o excesso do lado maior a partir da cauda — quem chegou por
// último é reembolsado primeiro, para não penalizar quem se comprometeu cedo.
//
// Cada reembolso segue a disciplina transferência-primeiro: o crédito de
// custódia confirma antes do pop na sequência e do decremento do totalPool,
// então a contabilidade reflete sempre exatamente os reembolsos que
// aconteceram. Se um crédito falhar a operação para com ErrFundingFailed, o
// pool permanece em Balancing e a chamada pode ser repetida para retomar o
// trim de onde parou.
func (e *Engine) LockAndBalance(ctx context.Context, eventID string) (BalanceReport, error) {
	p, err := e.get(eventID)
	if err != nil {
		return BalanceReport{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateOpen:
		p.state = StateBalancing
	case StateBalancing:
		// retomada após falha de reembolso
	default:
		return BalanceReport{}, ErrInvalidState
	}

	rep := BalanceReport{EventID: eventID}
	for len(p.entries[OutcomeHome]) != len(p.entries[OutcomeAway]) {
		larger := OutcomeHome
		if len(p.entries[OutcomeAway]) > len(p.entries[OutcomeHome]) {
			larger = OutcomeAway
		}
		seq := p.entries[larger]
		last := seq[len(seq)-1]

		if err := e.funding.Transfer(ctx, last, p.fixedStake, "refund:"+eventID); err != nil {
			e.log.Warn("balance refund failed",
				zap.String("eventId", eventID),
				zap.String("bettor", last),
				zap.Error(err),
			)
			return rep, fmt.Errorf("%w: %v", ErrFundingFailed, err)
		}

		p.entries[larger] = seq[:len(seq)-1]
		delete(p.byBettor, last)
		p.totalPool -= p.fixedStake
		rep.Refunds = append(rep.Refunds, Refund{Bettor: last, Outcome: larger, AmountCents: p.fixedStake})
	}

	p.state = StateLocked
	rep.CountPerSide = len(p.entries[OutcomeHome])

	e.log.Info("pool locked",
		zap.String("eventId", eventID),
		zap.Int("refunds", len(rep.Refunds)),
		zap.Int("countPerSide", rep.CountPerSide),
		zap.Int64("totalPoolCents", p.totalPool),
	)
	return rep, nil
}
