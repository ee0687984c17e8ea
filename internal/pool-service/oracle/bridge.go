package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/engine"
	"github.com/radieske/pool-bet-platform-poc/pkg/contracts/events"
)

// ResultPath e Times vão na requisição outbound; o oracle lê o campo do
// resultado no feed da partida e aplica o fator antes de responder.
const (
	ResultPath = "res.match.winner"
	Times      = 1
)

// Publisher publica a requisição outbound (Kafka em produção).
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Bridge é a fronteira assíncrona com o oracle. Mantém o mapeamento
// correlation id -> evento que o oracle não devolve (ele só ecoa o
// correlation id), e garante que cada requisição pendente seja consumida por
// exatamente um fulfillment.
type Bridge struct {
	log *zap.Logger
	eng *engine.Engine
	pub Publisher

	mu       sync.Mutex
	pending  map[string]string   // correlationID -> eventID
	consumed map[string]struct{} // correlation ids já aplicados
}

func NewBridge(log *zap.Logger, eng *engine.Engine, pub Publisher) *Bridge {
	return &Bridge{
		log:      log,
		eng:      eng,
		pub:      pub,
		pending:  make(map[string]string),
		consumed: make(map[string]struct{}),
	}
}

// RequestSettlement emite a requisição de resultado para um pool travado e
// devolve o correlation id. A chamada retorna imediatamente; o resultado
// chega depois, de forma independente, via Fulfill.
//
// Ordem: transição Locked -> AwaitingOracle primeiro (garante no máximo uma
// requisição pendente por evento), publish em seguida; se o publish falhar a
// transição é compensada e nada fica pendente.
func (b *Bridge) RequestSettlement(ctx context.Context, eventID string) (string, error) {
	snap, err := b.eng.Snapshot(eventID)
	if err != nil {
		return "", err
	}

	corrID := uuid.NewString()
	if err := b.eng.BeginAwait(eventID, corrID); err != nil {
		return "", err
	}

	req := events.OracleRequest{
		CorrelationID: corrID,
		MatchID:       snap.MatchID,
		ResultPath:    ResultPath,
		Times:         Times,
		RequestedAt:   time.Now().UTC(),
	}
	payload, _ := json.Marshal(req)

	if err := b.pub.Publish(ctx, corrID, payload); err != nil {
		if aerr := b.eng.AbortAwait(eventID); aerr != nil {
			b.log.Error("abort await after publish failure", zap.String("eventId", eventID), zap.Error(aerr))
		}
		return "", fmt.Errorf("oracle request publish: %w", err)
	}

	b.mu.Lock()
	b.pending[corrID] = eventID
	b.mu.Unlock()

	b.log.Info("oracle settlement requested",
		zap.String("eventId", eventID),
		zap.String("correlationId", corrID),
		zap.String("matchId", snap.MatchID),
	)
	return corrID, nil
}

// Fulfill aplica o resultado reportado pelo oracle. Idempotente por
// correlation id: ids desconhecidos falham com ErrUnknownRequest, ids já
// consumidos com ErrDuplicateFulfillment, e a entrada pendente só é consumida
// depois do settlement completar — um settlement que falhe (ErrNoWinners,
// crédito rejeitado) deixa a pendência de pé para intervenção administrativa.
func (b *Bridge) Fulfill(ctx context.Context, correlationID string, reported engine.Outcome) (engine.SettleReport, error) {
	b.mu.Lock()
	eventID, ok := b.pending[correlationID]
	if !ok {
		_, seen := b.consumed[correlationID]
		b.mu.Unlock()
		if seen {
			return engine.SettleReport{}, engine.ErrDuplicateFulfillment
		}
		return engine.SettleReport{}, engine.ErrUnknownRequest
	}
	b.mu.Unlock()

	rep, err := b.eng.Settle(ctx, eventID, reported)
	if err != nil {
		return rep, err
	}

	b.mu.Lock()
	delete(b.pending, correlationID)
	b.consumed[correlationID] = struct{}{}
	b.mu.Unlock()

	b.log.Info("oracle fulfillment applied",
		zap.String("eventId", eventID),
		zap.String("correlationId", correlationID),
		zap.String("outcome", reported.String()),
	)
	return rep, nil
}

// Abandon descarta a pendência de um correlation id (caminho do Cancel
// administrativo). Um fulfillment tardio passa a falhar com ErrUnknownRequest.
func (b *Bridge) Abandon(correlationID string) {
	if correlationID == "" {
		return
	}
	b.mu.Lock()
	delete(b.pending, correlationID)
	b.mu.Unlock()
}
