package oracle_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/engine"
	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/oracle"
	"github.com/radieske/pool-bet-platform-poc/pkg/contracts/events"
)

// fakePublisher captura as requisições publicadas e permite injetar falha.
type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	failNext bool
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return errors.New("broker unavailable")
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

// okFunding aceita todas as transferências e conta os créditos por conta.
type okFunding struct {
	mu      sync.Mutex
	credits map[string]int
}

func (f *okFunding) TransferFrom(context.Context, string, int64, string) error { return nil }

func (f *okFunding) Transfer(_ context.Context, recipient string, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credits == nil {
		f.credits = make(map[string]int)
	}
	f.credits[recipient]++
	return nil
}

func (f *okFunding) creditsTo(account string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[account]
}

// lockedPool prepara um pool balanceado e travado com n apostadores por lado.
func lockedPool(t *testing.T, eng *engine.Engine, eventID string, perSide int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < perSide; i++ {
		_, err := eng.PlaceWager(ctx, eventID, "MATCH_001", fmt.Sprintf("home-%d", i), engine.OutcomeHome, 1000)
		require.NoError(t, err)
		_, err = eng.PlaceWager(ctx, eventID, "MATCH_001", fmt.Sprintf("away-%d", i), engine.OutcomeAway, 1000)
		require.NoError(t, err)
	}
	_, err := eng.LockAndBalance(ctx, eventID)
	require.NoError(t, err)
}

func newBridge(t *testing.T) (*oracle.Bridge, *engine.Engine, *fakePublisher, *okFunding) {
	t.Helper()
	f := &okFunding{}
	eng := engine.New(zap.NewNop(), f)
	pub := &fakePublisher{}
	return oracle.NewBridge(zap.NewNop(), eng, pub), eng, pub, f
}

func TestRequestSettlementPublishesAndTransitions(t *testing.T) {
	b, eng, pub, _ := newBridge(t)
	ctx := context.Background()
	lockedPool(t, eng, "EV1", 1)

	corrID, err := b.RequestSettlement(ctx, "EV1")
	require.NoError(t, err)
	require.NotEmpty(t, corrID)

	snap, err := eng.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "AWAITING_ORACLE", snap.State)
	assert.Equal(t, corrID, snap.PendingRequestID)

	require.Len(t, pub.payloads, 1)
	var req events.OracleRequest
	require.NoError(t, json.Unmarshal(pub.payloads[0], &req))
	assert.Equal(t, corrID, req.CorrelationID)
	assert.Equal(t, "MATCH_001", req.MatchID)
	assert.Equal(t, oracle.ResultPath, req.ResultPath)
	assert.Equal(t, int64(oracle.Times), req.Times)
}

func TestRequestSettlementPublishFailureRollsBack(t *testing.T) {
	b, eng, pub, _ := newBridge(t)
	ctx := context.Background()
	lockedPool(t, eng, "EV1", 1)

	pub.failNext = true
	_, err := b.RequestSettlement(ctx, "EV1")
	require.Error(t, err)

	// a transição foi compensada; nada ficou pendente
	snap, err := eng.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "LOCKED", snap.State)
	assert.Empty(t, snap.PendingRequestID)

	// nova tentativa funciona
	corrID, err := b.RequestSettlement(ctx, "EV1")
	require.NoError(t, err)
	assert.NotEmpty(t, corrID)
}

func TestRequestSettlementRequiresLocked(t *testing.T) {
	b, eng, _, _ := newBridge(t)
	ctx := context.Background()

	_, err := eng.PlaceWager(ctx, "EV1", "MATCH_001", "alice", engine.OutcomeHome, 1000)
	require.NoError(t, err)

	_, err = b.RequestSettlement(ctx, "EV1")
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	_, err = b.RequestSettlement(ctx, "NOPE")
	assert.ErrorIs(t, err, engine.ErrPoolNotFound)
}

func TestFulfillSettlesExactlyOnce(t *testing.T) {
	b, eng, _, f := newBridge(t)
	ctx := context.Background()
	lockedPool(t, eng, "EV1", 1)

	corrID, err := b.RequestSettlement(ctx, "EV1")
	require.NoError(t, err)

	rep, err := b.Fulfill(ctx, corrID, engine.OutcomeAway)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.WinnerCount)
	assert.Equal(t, int64(2000), rep.PrizeCents)
	assert.Equal(t, 1, f.creditsTo("away-0"))

	// reenvio do mesmo fulfillment não credita de novo
	_, err = b.Fulfill(ctx, corrID, engine.OutcomeAway)
	assert.ErrorIs(t, err, engine.ErrDuplicateFulfillment)
	assert.Equal(t, 1, f.creditsTo("away-0"))

	snap, err := eng.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "SETTLED", snap.State)
	assert.Equal(t, int64(0), snap.TotalPoolCents)
}

func TestFulfillUnknownCorrelation(t *testing.T) {
	b, _, _, _ := newBridge(t)
	_, err := b.Fulfill(context.Background(), "never-issued", engine.OutcomeHome)
	assert.ErrorIs(t, err, engine.ErrUnknownRequest)
}

func TestFulfillNoWinnersKeepsRequestPending(t *testing.T) {
	b, eng, _, _ := newBridge(t)
	ctx := context.Background()
	lockedPool(t, eng, "EV1", 1) // ninguém no draw

	corrID, err := b.RequestSettlement(ctx, "EV1")
	require.NoError(t, err)

	_, err = b.Fulfill(ctx, corrID, engine.OutcomeDraw)
	assert.ErrorIs(t, err, engine.ErrNoWinners)

	// a pendência não foi consumida: o mesmo id ainda falha com NoWinners,
	// não com duplicata, e o pool segue aguardando intervenção
	_, err = b.Fulfill(ctx, corrID, engine.OutcomeDraw)
	assert.ErrorIs(t, err, engine.ErrNoWinners)

	snap, err := eng.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "AWAITING_ORACLE", snap.State)
	assert.Equal(t, corrID, snap.PendingRequestID)
}

func TestAbandonDropsPendingRequest(t *testing.T) {
	b, eng, _, f := newBridge(t)
	ctx := context.Background()
	lockedPool(t, eng, "EV1", 1)

	corrID, err := b.RequestSettlement(ctx, "EV1")
	require.NoError(t, err)

	rep, err := eng.Cancel(ctx, "EV1")
	require.NoError(t, err)
	assert.Equal(t, corrID, rep.AbandonedRequestID)
	b.Abandon(rep.AbandonedRequestID)

	// fulfillment tardio não encontra mais a requisição
	_, err = b.Fulfill(ctx, corrID, engine.OutcomeHome)
	assert.ErrorIs(t, err, engine.ErrUnknownRequest)

	// todos reembolsados, nenhum prêmio pago
	assert.Equal(t, 1, f.creditsTo("home-0"))
	assert.Equal(t, 1, f.creditsTo("away-0"))
}
