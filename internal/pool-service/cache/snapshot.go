package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/engine"
)

// Snapshots mantém a visão corrente de cada pool no Redis e publica cada
// atualização no canal Pub/Sub consumido pelo hub WebSocket.
type Snapshots struct {
	Client  *redis.Client
	TTL     time.Duration
	Channel string
}

func NewSnapshots(c *redis.Client, ttl time.Duration, channel string) *Snapshots {
	return &Snapshots{Client: c, TTL: ttl, Channel: channel}
}

// key gera a chave Redis do snapshot corrente de um pool
func key(eventID string) string { return "pool:current:" + eventID }

// SetCurrent grava o snapshot corrente do pool com TTL definido.
func (s *Snapshots) SetCurrent(ctx context.Context, snap engine.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, key(snap.EventID), b, s.TTL).Err()
}

// GetCurrent lê o snapshot corrente; ok=false quando não há entrada.
func (s *Snapshots) GetCurrent(ctx context.Context, eventID string, dst *engine.Snapshot) (bool, error) {
	b, err := s.Client.Get(ctx, key(eventID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

// Payload padrão para o WS do pool-service
type WSUpdate struct {
	EventID string      `json:"eventId"`
	Payload interface{} `json:"payload"`
}

// Publish envia o snapshot para o canal de broadcast.
func (s *Snapshots) Publish(ctx context.Context, snap engine.Snapshot) error {
	b, _ := json.Marshal(WSUpdate{EventID: snap.EventID, Payload: snap})
	return s.Client.Publish(ctx, s.Channel, b).Err()
}
