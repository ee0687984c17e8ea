package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/engine"
	"github.com/radieske/pool-bet-platform-poc/pkg/contracts/events"
)

// Consumer consome fulfillments do Kafka e entrega ao Bridge.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Consumer struct {
	Log    *zap.Logger
	Reader *kafka.Reader
	Bridge *Bridge
	DLQ    *kafka.Writer // opcional

	OnConsumed func()                        // métricas (counter++)
	OnSettled  func(rep engine.SettleReport) // settlement aplicado
	OnRejected func(reason string)           // fulfillment rejeitado (unknown/duplicate)
	OnError    func(stage string)            // métricas por fase
}

// Run inicia o loop principal de consumo. Rejeições por idempotência
// (duplicata, id desconhecido) são normais e só contam métrica; mensagens
// indecodificáveis ou settlements que falham vão para a DLQ para ficarem
// visíveis a uma intervenção administrativa.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			if c.OnError != nil {
				c.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if c.OnConsumed != nil {
			c.OnConsumed()
		}

		var ff events.OracleFulfilled
		if err := json.Unmarshal(m.Value, &ff); err != nil {
			c.Log.Warn("invalid fulfillment message", zap.Error(err))
			if c.OnError != nil {
				c.OnError("decode")
			}
			c.toDLQ(ctx, m)
			continue
		}

		outcome, err := engine.ParseOutcome(ff.Outcome)
		if err != nil {
			c.Log.Warn("fulfillment with unknown outcome",
				zap.String("correlationId", ff.CorrelationID),
				zap.String("outcome", ff.Outcome),
			)
			if c.OnError != nil {
				c.OnError("outcome")
			}
			c.toDLQ(ctx, m)
			continue
		}

		rep, err := c.Bridge.Fulfill(ctx, ff.CorrelationID, outcome)
		switch {
		case err == nil:
			if c.OnSettled != nil {
				c.OnSettled(rep)
			}
		case errors.Is(err, engine.ErrDuplicateFulfillment):
			c.Log.Info("duplicate fulfillment ignored", zap.String("correlationId", ff.CorrelationID))
			if c.OnRejected != nil {
				c.OnRejected("duplicate")
			}
		case errors.Is(err, engine.ErrUnknownRequest):
			c.Log.Warn("fulfillment for unknown request", zap.String("correlationId", ff.CorrelationID))
			if c.OnRejected != nil {
				c.OnRejected("unknown")
			}
		default:
			// ErrNoWinners, crédito rejeitado etc: a pendência continua de pé,
			// a mensagem vai para a DLQ e o caminho administrativo resolve
			c.Log.Error("fulfillment settlement failed",
				zap.String("correlationId", ff.CorrelationID),
				zap.Error(err),
			)
			if c.OnError != nil {
				c.OnError("settle")
			}
			c.toDLQ(ctx, m)
		}
	}
}

func (c *Consumer) toDLQ(ctx context.Context, m kafka.Message) {
	if c.DLQ == nil {
		return
	}
	err := c.DLQ.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value, Time: time.Now()})
	if err != nil {
		c.Log.Error("dlq write failed", zap.Error(err))
	}
}
