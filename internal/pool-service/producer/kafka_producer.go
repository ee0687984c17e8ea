package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/pool-bet-platform-poc/pkg/contracts/events"
)

// KafkaPublisher publica eventos de ciclo de vida de pool e requisições de
// oracle nos tópicos correspondentes.
type KafkaPublisher struct {
	PoolWriter   *kafka.Writer
	OracleWriter *kafka.Writer
}

func NewKafkaPublisher(pool, oracle *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{PoolWriter: pool, OracleWriter: oracle}
}

func (p *KafkaPublisher) PublishPoolEvent(ctx context.Context, e events.PoolEvent) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.PoolWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.EventID), Value: b})
}

// Publish implementa oracle.Publisher para a requisição outbound.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	return p.OracleWriter.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload, Time: time.Now()})
}
