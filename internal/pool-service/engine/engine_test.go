package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/engine"
)

// transfer registra uma movimentação de custódia observada pelo fake.
type transfer struct {
	Account     string
	AmountCents int64
	Ref         string
}

// fakeFunding implementa engine.Funding registrando débitos e créditos e
// permitindo injetar falhas por conta.
type fakeFunding struct {
	mu       sync.Mutex
	debits   []transfer
	credits  []transfer
	failFor  map[string]bool
	failNext int // falha as próximas N chamadas, qualquer conta
}

func newFakeFunding() *fakeFunding {
	return &fakeFunding{failFor: make(map[string]bool)}
}

func (f *fakeFunding) TransferFrom(_ context.Context, holder string, amountCents int64, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 || f.failFor[holder] {
		if f.failNext > 0 {
			f.failNext--
		}
		return fmt.Errorf("debit refused for %s", holder)
	}
	f.debits = append(f.debits, transfer{holder, amountCents, ref})
	return nil
}

func (f *fakeFunding) Transfer(_ context.Context, recipient string, amountCents int64, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 || f.failFor[recipient] {
		if f.failNext > 0 {
			f.failNext--
		}
		return fmt.Errorf("credit refused for %s", recipient)
	}
	f.credits = append(f.credits, transfer{recipient, amountCents, ref})
	return nil
}

func (f *fakeFunding) creditsTo(account string) []transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transfer
	for _, c := range f.credits {
		if c.Account == account {
			out = append(out, c)
		}
	}
	return out
}

func newEngine() (*engine.Engine, *fakeFunding) {
	f := newFakeFunding()
	return engine.New(zap.NewNop(), f), f
}

// preenche um pool com n apostadores no home e m no away, stake fixo
func fillPool(t *testing.T, e *engine.Engine, eventID string, stake int64, home, away, draw int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < home; i++ {
		_, err := e.PlaceWager(ctx, eventID, "MATCH_001", fmt.Sprintf("home-%d", i), engine.OutcomeHome, stake)
		require.NoError(t, err)
	}
	for i := 0; i < away; i++ {
		_, err := e.PlaceWager(ctx, eventID, "MATCH_001", fmt.Sprintf("away-%d", i), engine.OutcomeAway, stake)
		require.NoError(t, err)
	}
	for i := 0; i < draw; i++ {
		_, err := e.PlaceWager(ctx, eventID, "MATCH_001", fmt.Sprintf("draw-%d", i), engine.OutcomeDraw, stake)
		require.NoError(t, err)
	}
}

func TestPlaceWagerFirstStakeFixesValue(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()

	snap, err := e.PlaceWager(ctx, "EV1", "MATCH_001", "alice", engine.OutcomeHome, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), snap.FixedStakeCents)
	assert.Equal(t, int64(1000), snap.TotalPoolCents)
	assert.Equal(t, "OPEN", snap.State)
	require.Len(t, f.debits, 1)
	assert.Equal(t, "wager:EV1", f.debits[0].Ref)

	// stake diferente do fixado é rejeitado sem débito
	_, err = e.PlaceWager(ctx, "EV1", "MATCH_001", "bob", engine.OutcomeAway, 500)
	assert.ErrorIs(t, err, engine.ErrStakeMismatch)
	assert.Len(t, f.debits, 1)
}

func TestPlaceWagerDuplicateBettor(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()

	_, err := e.PlaceWager(ctx, "EV1", "MATCH_001", "alice", engine.OutcomeHome, 1000)
	require.NoError(t, err)

	_, err = e.PlaceWager(ctx, "EV1", "MATCH_001", "alice", engine.OutcomeAway, 1000)
	assert.ErrorIs(t, err, engine.ErrDuplicateBettor)
	assert.Len(t, f.debits, 1)
}

func TestPlaceWagerFundingFailureLeavesNoRecord(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	f.failFor["broke"] = true

	_, err := e.PlaceWager(ctx, "EV1", "MATCH_001", "alice", engine.OutcomeHome, 1000)
	require.NoError(t, err)

	_, err = e.PlaceWager(ctx, "EV1", "MATCH_001", "broke", engine.OutcomeAway, 1000)
	assert.ErrorIs(t, err, engine.ErrFundingFailed)

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), snap.TotalPoolCents)
	assert.Equal(t, 0, snap.Counts["away"])

	// a conta que falhou pode tentar de novo depois
	f.failFor["broke"] = false
	_, err = e.PlaceWager(ctx, "EV1", "MATCH_001", "broke", engine.OutcomeAway, 1000)
	assert.NoError(t, err)
}

func TestPlaceWagerValidation(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()

	_, err := e.PlaceWager(ctx, "EV1", "MATCH_001", "alice", engine.Outcome(9), 1000)
	assert.ErrorIs(t, err, engine.ErrUnknownOutcome)

	_, err = e.PlaceWager(ctx, "EV1", "MATCH_001", "alice", engine.OutcomeHome, 0)
	assert.ErrorIs(t, err, engine.ErrArithmeticBounds)

	_, err = e.PlaceWager(ctx, "EV1", "MATCH_001", "alice", engine.OutcomeHome, -50)
	assert.ErrorIs(t, err, engine.ErrArithmeticBounds)

	_, err = e.PlaceWager(ctx, "EV1", "MATCH_001", "", engine.OutcomeHome, 1000)
	assert.ErrorIs(t, err, engine.ErrArithmeticBounds)

	// nenhuma validação rejeitada chega ao funding
	assert.Empty(t, f.debits)
}

func TestPoolTotalTracksParticipants(t *testing.T) {
	e, _ := newEngine()
	fillPool(t, e, "EV1", 250, 3, 2, 1)

	total, err := e.PoolTotal("EV1")
	require.NoError(t, err)
	assert.Equal(t, int64(250*6), total)

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Counts["home"])
	assert.Equal(t, 2, snap.Counts["away"])
	assert.Equal(t, 1, snap.Counts["draw"])
}

func TestPlaceWagerBatchBestEffort(t *testing.T) {
	e, _ := newEngine()
	ctx := context.Background()

	entries := []engine.BatchEntry{
		{Bettor: "alice", Outcome: engine.OutcomeHome, AmountCents: 1000},
		{Bettor: "bob", Outcome: engine.OutcomeAway, AmountCents: 500}, // stake errado
		{Bettor: "carol", Outcome: engine.OutcomeAway, AmountCents: 1000},
	}
	applied, err := e.PlaceWagerBatch(ctx, "EV1", "MATCH_001", entries)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrStakeMismatch)
	assert.Equal(t, 1, applied)

	// a entrada já aplicada permanece; as posteriores à falha não entram
	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), snap.TotalPoolCents)
	assert.Equal(t, 1, snap.Counts["home"])
	assert.Equal(t, 0, snap.Counts["away"])
}

func TestLockAndBalanceTrimsLargerSideLIFO(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 3, 1, 0)

	rep, err := e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	require.Len(t, rep.Refunds, 2)
	assert.Equal(t, 1, rep.CountPerSide)

	// quem chegou por último sai primeiro
	assert.Equal(t, "home-2", rep.Refunds[0].Bettor)
	assert.Equal(t, "home-1", rep.Refunds[1].Bettor)
	assert.Equal(t, int64(1000), rep.Refunds[0].AmountCents)

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "LOCKED", snap.State)
	assert.Equal(t, int64(2000), snap.TotalPoolCents)
	assert.Equal(t, 1, snap.Counts["home"])
	assert.Equal(t, 1, snap.Counts["away"])

	require.Len(t, f.credits, 2)
	assert.Equal(t, "refund:EV1", f.credits[0].Ref)
}

func TestLockAndBalanceEqualSidesNoRefunds(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 2, 2, 3)

	rep, err := e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	assert.Empty(t, rep.Refunds)
	assert.Equal(t, 2, rep.CountPerSide)
	assert.Empty(t, f.credits)

	// draw não participa do trim
	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Counts["draw"])
	assert.Equal(t, int64(7000), snap.TotalPoolCents)
}

func TestLockAndBalanceRefundFailureIsResumable(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 3, 1, 0)

	// o segundo crédito falha; o primeiro reembolso permanece contabilizado
	f.failFor["home-1"] = true
	rep, err := e.LockAndBalance(ctx, "EV1")
	require.ErrorIs(t, err, engine.ErrFundingFailed)
	require.Len(t, rep.Refunds, 1)
	assert.Equal(t, "home-2", rep.Refunds[0].Bettor)

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "BALANCING", snap.State)
	assert.Equal(t, int64(3000), snap.TotalPoolCents)

	// pool em Balancing não aceita novas apostas
	_, err = e.PlaceWager(ctx, "EV1", "MATCH_001", "late", engine.OutcomeAway, 1000)
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	// retomada completa o trim de onde parou
	f.failFor["home-1"] = false
	rep, err = e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	require.Len(t, rep.Refunds, 1)
	assert.Equal(t, "home-1", rep.Refunds[0].Bettor)

	snap, err = e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "LOCKED", snap.State)
	assert.Equal(t, int64(2000), snap.TotalPoolCents)
}

func TestLockAndBalanceInvalidState(t *testing.T) {
	e, _ := newEngine()
	ctx := context.Background()

	_, err := e.LockAndBalance(ctx, "NOPE")
	assert.ErrorIs(t, err, engine.ErrPoolNotFound)

	fillPool(t, e, "EV1", 1000, 1, 1, 0)
	_, err = e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)

	// já Locked: segundo lock é rejeitado
	_, err = e.LockAndBalance(ctx, "EV1")
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestSettleSingleWinnerTakesPool(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 1, 1, 0)

	_, err := e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	require.NoError(t, e.BeginAwait("EV1", "corr-1"))

	rep, err := e.Settle(ctx, "EV1", engine.OutcomeHome)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.WinnerCount)
	assert.Equal(t, int64(2000), rep.PrizeCents)
	assert.Equal(t, int64(0), rep.DustCents)
	assert.Equal(t, 0, rep.PendingPayouts)

	credits := f.creditsTo("home-0")
	require.Len(t, credits, 1)
	assert.Equal(t, int64(2000), credits[0].AmountCents)
	assert.Equal(t, "prize:EV1", credits[0].Ref)

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "SETTLED", snap.State)
	assert.Equal(t, "home", snap.Winner)
	assert.Equal(t, int64(0), snap.TotalPoolCents)
	assert.Empty(t, snap.PendingRequestID)
}

func TestSettleIntegerDivisionKeepsDust(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	// stake 3: home=2, away=2, draw=3 -> pool 21, já balanceado
	fillPool(t, e, "EV1", 3, 2, 2, 3)

	_, err := e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	require.NoError(t, e.BeginAwait("EV1", "corr-1"))

	rep, err := e.Settle(ctx, "EV1", engine.OutcomeHome)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.WinnerCount)
	assert.Equal(t, int64(10), rep.PrizeCents)
	assert.Equal(t, int64(1), rep.DustCents)

	assert.Len(t, f.creditsTo("home-0"), 1)
	assert.Len(t, f.creditsTo("home-1"), 1)

	// o dust fica retido em custódia
	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.TotalPoolCents)
	assert.Equal(t, int64(1), snap.DustCents)
}

func TestSettleNoWinnersLeavesPoolAwaiting(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 1, 1, 0)

	_, err := e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	require.NoError(t, e.BeginAwait("EV1", "corr-1"))

	_, err = e.Settle(ctx, "EV1", engine.OutcomeDraw)
	assert.ErrorIs(t, err, engine.ErrNoWinners)
	assert.Empty(t, f.credits)

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "AWAITING_ORACLE", snap.State)
	assert.Equal(t, "corr-1", snap.PendingRequestID)
	assert.Equal(t, int64(2000), snap.TotalPoolCents)
}

func TestSettleFailedPayoutStaysQueued(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 2, 2, 0)

	_, err := e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	require.NoError(t, e.BeginAwait("EV1", "corr-1"))

	f.failFor["home-1"] = true
	rep, err := e.Settle(ctx, "EV1", engine.OutcomeHome)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.PendingPayouts)
	assert.Equal(t, int64(2000), rep.PrizeCents)

	// só o crédito confirmado decrementa o total
	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "SETTLED", snap.State)
	assert.Equal(t, int64(2000), snap.TotalPoolCents)
	assert.Equal(t, 1, snap.PendingPayouts)

	// re-drenagem paga o que ficou na fila, uma única vez
	f.failFor["home-1"] = false
	pending, err := e.RetryPayouts(ctx, "EV1")
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.Len(t, f.creditsTo("home-1"), 1)
	assert.Len(t, f.creditsTo("home-0"), 1)

	snap, err = e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.TotalPoolCents)
	assert.Equal(t, 0, snap.PendingPayouts)

	// nova re-drenagem é inócua
	pending, err = e.RetryPayouts(ctx, "EV1")
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.Len(t, f.creditsTo("home-1"), 1)
}

func TestRetryPayoutsRequiresSettled(t *testing.T) {
	e, _ := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 1, 1, 0)

	_, err := e.RetryPayouts(ctx, "EV1")
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestSettleRequiresAwaitingOracle(t *testing.T) {
	e, _ := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 1, 1, 0)

	_, err := e.Settle(ctx, "EV1", engine.OutcomeHome)
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	_, err = e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	_, err = e.Settle(ctx, "EV1", engine.OutcomeHome)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestBeginAwaitAndAbort(t *testing.T) {
	e, _ := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 1, 1, 0)

	// só Locked pode aguardar o oracle
	err := e.BeginAwait("EV1", "corr-1")
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	_, err = e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	require.NoError(t, e.BeginAwait("EV1", "corr-1"))

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "AWAITING_ORACLE", snap.State)
	assert.Equal(t, "corr-1", snap.PendingRequestID)

	require.NoError(t, e.AbortAwait("EV1"))
	snap, err = e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "LOCKED", snap.State)
	assert.Empty(t, snap.PendingRequestID)
}

func TestCancelRefundsEveryone(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 2, 1, 1)

	_, err := e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	require.NoError(t, e.BeginAwait("EV1", "corr-1"))

	before := len(f.credits)
	rep, err := e.Cancel(ctx, "EV1")
	require.NoError(t, err)
	assert.Len(t, rep.Refunds, 3) // 1 home + 1 away + 1 draw após o trim
	assert.Equal(t, "corr-1", rep.AbandonedRequestID)
	assert.Len(t, f.credits, before+3)
	for _, c := range f.credits[before:] {
		assert.Equal(t, "cancel:EV1", c.Ref)
		assert.Equal(t, int64(1000), c.AmountCents)
	}

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", snap.State)
	assert.Equal(t, int64(0), snap.TotalPoolCents)
	assert.Empty(t, snap.PendingRequestID)
}

func TestCancelFailureIsRetryable(t *testing.T) {
	e, f := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 1, 1, 0)

	f.failNext = 1
	_, err := e.Cancel(ctx, "EV1")
	require.ErrorIs(t, err, engine.ErrFundingFailed)

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	assert.NotEqual(t, "CANCELLED", snap.State)

	rep, err := e.Cancel(ctx, "EV1")
	require.NoError(t, err)
	assert.Len(t, rep.Refunds, 2)

	snap, err = e.Snapshot("EV1")
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", snap.State)
	assert.Equal(t, int64(0), snap.TotalPoolCents)
}

func TestCancelTerminalStatesRejected(t *testing.T) {
	e, _ := newEngine()
	ctx := context.Background()
	fillPool(t, e, "EV1", 1000, 1, 1, 0)

	_, err := e.LockAndBalance(ctx, "EV1")
	require.NoError(t, err)
	require.NoError(t, e.BeginAwait("EV1", "corr-1"))
	_, err = e.Settle(ctx, "EV1", engine.OutcomeHome)
	require.NoError(t, err)

	_, err = e.Cancel(ctx, "EV1")
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestParticipantsArrivalOrder(t *testing.T) {
	e, _ := newEngine()
	fillPool(t, e, "EV1", 1000, 3, 0, 0)

	seq, err := e.Participants("EV1", engine.OutcomeHome)
	require.NoError(t, err)
	assert.Equal(t, []string{"home-0", "home-1", "home-2"}, seq)
}

func TestConcurrentWagersKeepInvariant(t *testing.T) {
	e, _ := newEngine()
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := engine.OutcomeHome
			if i%2 == 1 {
				o = engine.OutcomeAway
			}
			_, _ = e.PlaceWager(ctx, "EV1", "MATCH_001", fmt.Sprintf("b-%d", i), o, 100)
		}(i)
	}
	wg.Wait()

	snap, err := e.Snapshot("EV1")
	require.NoError(t, err)
	participants := snap.Counts["home"] + snap.Counts["away"] + snap.Counts["draw"]
	assert.Equal(t, snap.FixedStakeCents*int64(participants), snap.TotalPoolCents)
}

func TestSnapshotUnknownPool(t *testing.T) {
	e, _ := newEngine()
	_, err := e.Snapshot("NOPE")
	assert.True(t, errors.Is(err, engine.ErrPoolNotFound))
}
