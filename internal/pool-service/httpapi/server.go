package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/dto"
	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/engine"
	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/oracle"
	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/repo"
	"github.com/radieske/pool-bet-platform-poc/pkg/contracts/events"
)

// Journal é a trilha de auditoria durável (Postgres); opcional nos testes.
type Journal interface {
	Insert(ctx context.Context, e repo.Entry) error
	ListByEvent(ctx context.Context, eventID string) ([]repo.Entry, error)
}

// Snapshots é o read-side em Redis; opcional nos testes.
type Snapshots interface {
	SetCurrent(ctx context.Context, snap engine.Snapshot) error
	Publish(ctx context.Context, snap engine.Snapshot) error
	GetCurrent(ctx context.Context, eventID string, dst *engine.Snapshot) (bool, error)
}

// Server expõe a API do motor de pools. Duas capabilities distintas, em
// composição plana: o adapter da plataforma social pode registrar apostas, o
// owner pode travar, solicitar oracle e cancelar. Sem token correto a
// operação falha com 401 e nenhum efeito acontece (nem débito de custódia).
type Server struct {
	log    *zap.Logger
	eng    *engine.Engine
	bridge *oracle.Bridge

	journal Journal
	snaps   Snapshots
	publ    interface {
		PublishPoolEvent(context.Context, events.PoolEvent) error
	}

	ownerToken   string
	adapterToken string
}

func NewServer(
	log *zap.Logger,
	eng *engine.Engine,
	bridge *oracle.Bridge,
	journal Journal,
	snaps Snapshots,
	publ interface {
		PublishPoolEvent(context.Context, events.PoolEvent) error
	},
	ownerToken, adapterToken string,
) *Server {
	return &Server{
		log:          log,
		eng:          eng,
		bridge:       bridge,
		journal:      journal,
		snaps:        snaps,
		publ:         publ,
		ownerToken:   ownerToken,
		adapterToken: adapterToken,
	}
}

// Router retorna o roteador HTTP com os endpoints da API de pools
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// superfície do adapter (plataforma social)
	r.Post("/actions/open", s.openAction)
	r.Post("/actions/join", s.joinAction)
	r.Post("/actions/join-batch", s.joinBatch)

	// superfície administrativa (owner)
	r.Post("/pools/{id}/lock", s.lockPool)
	r.Post("/pools/{id}/request-settlement", s.requestSettlement)
	r.Post("/pools/{id}/retry-payouts", s.retryPayouts)
	r.Post("/pools/{id}/cancel", s.cancelPool)

	// leitura pública
	r.Get("/pools/{id}", s.getPool)
	r.Get("/pools/{id}/journal", s.getJournal)

	return r
}

// bearerToken extrai o token do header Authorization
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}

// requireToken aplica o check de capability; responde 401 quando não bate
func (s *Server) requireToken(w http.ResponseWriter, r *http.Request, token string) bool {
	if token == "" || bearerToken(r) != token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return false
	}
	return true
}

// statusFor mapeia a taxonomia de erros do motor para HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrPoolNotFound), errors.Is(err, engine.ErrUnknownRequest):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrStakeMismatch),
		errors.Is(err, engine.ErrDuplicateBettor),
		errors.Is(err, engine.ErrDuplicateFulfillment),
		errors.Is(err, engine.ErrNoWinners):
		return http.StatusConflict
	case errors.Is(err, engine.ErrFundingFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, engine.ErrArithmeticBounds), errors.Is(err, engine.ErrUnknownOutcome):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// decodeAction abre o envelope do adapter: body JSON com payload em base64
func decodeAction(r *http.Request, dst any) error {
	var req dto.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// openAction registra a primeira aposta de um evento (cria o pool e fixa o
// stake). Gated pela capability do adapter.
func (s *Server) openAction(w http.ResponseWriter, r *http.Request) {
	if !s.requireToken(w, r, s.adapterToken) {
		return
	}
	s.placeFromAction(w, r, false)
}

// joinAction registra uma aposta subsequente em um pool já aberto.
func (s *Server) joinAction(w http.ResponseWriter, r *http.Request) {
	if !s.requireToken(w, r, s.adapterToken) {
		return
	}
	s.placeFromAction(w, r, true)
}

func (s *Server) placeFromAction(w http.ResponseWriter, r *http.Request, mustExist bool) {
	var p dto.ActionPayload
	if err := decodeAction(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad payload"})
		return
	}
	if p.EventID == "" || p.Bettor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	outcome, err := engine.ParseOutcome(p.Outcome)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if mustExist {
		if _, err := s.eng.Snapshot(p.EventID); err != nil {
			s.writeErr(w, err)
			return
		}
	}
	matchID := p.MatchID
	if matchID == "" {
		matchID = p.EventID
	}

	snap, err := s.eng.PlaceWager(r.Context(), p.EventID, matchID, p.Bettor, outcome, p.StakeCents)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.record(r.Context(), repo.Entry{
		EventID:     p.EventID,
		Kind:        repo.KindWager,
		Bettor:      p.Bettor,
		Outcome:     p.Outcome,
		AmountCents: p.StakeCents,
	})
	s.publish(r.Context(), events.PoolEvent{
		EventID:        p.EventID,
		MatchID:        matchID,
		Kind:           events.PoolWagerPlaced,
		Bettor:         p.Bettor,
		Outcome:        p.Outcome,
		AmountCents:    p.StakeCents,
		TotalPoolCents: snap.TotalPoolCents,
		State:          snap.State,
	})
	s.broadcast(r.Context(), snap)

	writeJSON(w, http.StatusOK, dto.PoolResponse{Pool: snap})
}

// joinBatch aplica um lote de apostas com política best-effort sequencial.
func (s *Server) joinBatch(w http.ResponseWriter, r *http.Request) {
	if !s.requireToken(w, r, s.adapterToken) {
		return
	}
	var p dto.BatchPayload
	if err := decodeAction(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad payload"})
		return
	}
	if p.EventID == "" || len(p.Entries) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	matchID := p.MatchID
	if matchID == "" {
		matchID = p.EventID
	}

	entries := make([]engine.BatchEntry, 0, len(p.Entries))
	for _, en := range p.Entries {
		outcome, err := engine.ParseOutcome(en.Outcome)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		entries = append(entries, engine.BatchEntry{Bettor: en.Bettor, Outcome: outcome, AmountCents: en.StakeCents})
	}

	applied, berr := s.eng.PlaceWagerBatch(r.Context(), p.EventID, matchID, entries)
	for i := 0; i < applied; i++ {
		s.record(r.Context(), repo.Entry{
			EventID:     p.EventID,
			Kind:        repo.KindWager,
			Bettor:      p.Entries[i].Bettor,
			Outcome:     p.Entries[i].Outcome,
			AmountCents: p.Entries[i].StakeCents,
		})
	}

	snap, serr := s.eng.Snapshot(p.EventID)
	if serr == nil {
		s.broadcast(r.Context(), snap)
	}

	resp := dto.BatchResponse{Applied: applied, Pool: snap}
	status := http.StatusOK
	if berr != nil {
		resp.Error = berr.Error()
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

// lockPool trava o pool e executa o balanceamento (owner).
func (s *Server) lockPool(w http.ResponseWriter, r *http.Request) {
	if !s.requireToken(w, r, s.ownerToken) {
		return
	}
	id := chi.URLParam(r, "id")

	rep, err := s.eng.LockAndBalance(r.Context(), id)
	for _, rf := range rep.Refunds {
		s.record(r.Context(), repo.Entry{
			EventID:     id,
			Kind:        repo.KindRefund,
			Bettor:      rf.Bettor,
			Outcome:     rf.Outcome.String(),
			AmountCents: rf.AmountCents,
			Detail:      "balance trim",
		})
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}

	snap, _ := s.eng.Snapshot(id)
	s.record(r.Context(), repo.Entry{EventID: id, Kind: repo.KindState, Detail: snap.State})
	s.publish(r.Context(), events.PoolEvent{
		EventID:        id,
		MatchID:        snap.MatchID,
		Kind:           events.PoolLocked,
		TotalPoolCents: snap.TotalPoolCents,
		State:          snap.State,
	})
	s.broadcast(r.Context(), snap)

	writeJSON(w, http.StatusOK, dto.LockResponse{Report: rep, Pool: snap})
}

// requestSettlement emite a requisição assíncrona ao oracle (owner).
func (s *Server) requestSettlement(w http.ResponseWriter, r *http.Request) {
	if !s.requireToken(w, r, s.ownerToken) {
		return
	}
	id := chi.URLParam(r, "id")

	corrID, err := s.bridge.RequestSettlement(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	snap, _ := s.eng.Snapshot(id)
	s.record(r.Context(), repo.Entry{EventID: id, Kind: repo.KindState, Detail: snap.State + " corr=" + corrID})
	s.publish(r.Context(), events.PoolEvent{
		EventID:        id,
		MatchID:        snap.MatchID,
		Kind:           events.PoolOracleRequested,
		TotalPoolCents: snap.TotalPoolCents,
		State:          snap.State,
	})
	s.broadcast(r.Context(), snap)

	writeJSON(w, http.StatusOK, dto.RequestSettlementResponse{CorrelationID: corrID, Pool: snap})
}

// retryPayouts re-drena a fila de payouts de um pool liquidado (owner).
func (s *Server) retryPayouts(w http.ResponseWriter, r *http.Request) {
	if !s.requireToken(w, r, s.ownerToken) {
		return
	}
	id := chi.URLParam(r, "id")

	pending, err := s.eng.RetryPayouts(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	snap, _ := s.eng.Snapshot(id)
	s.broadcast(r.Context(), snap)

	writeJSON(w, http.StatusOK, dto.RetryPayoutsResponse{PendingPayouts: pending, Pool: snap})
}

// cancelPool é o caminho administrativo para pools presos: reembolsa todos os
// participantes retidos e abandona a requisição de oracle pendente (owner).
func (s *Server) cancelPool(w http.ResponseWriter, r *http.Request) {
	if !s.requireToken(w, r, s.ownerToken) {
		return
	}
	id := chi.URLParam(r, "id")

	rep, err := s.eng.Cancel(r.Context(), id)
	for _, rf := range rep.Refunds {
		s.record(r.Context(), repo.Entry{
			EventID:     id,
			Kind:        repo.KindRefund,
			Bettor:      rf.Bettor,
			Outcome:     rf.Outcome.String(),
			AmountCents: rf.AmountCents,
			Detail:      "admin cancel",
		})
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.bridge.Abandon(rep.AbandonedRequestID)

	snap, _ := s.eng.Snapshot(id)
	s.record(r.Context(), repo.Entry{EventID: id, Kind: repo.KindState, Detail: snap.State})
	s.publish(r.Context(), events.PoolEvent{
		EventID:        id,
		MatchID:        snap.MatchID,
		Kind:           events.PoolCancelled,
		TotalPoolCents: snap.TotalPoolCents,
		State:          snap.State,
	})
	s.broadcast(r.Context(), snap)

	writeJSON(w, http.StatusOK, dto.CancelResponse{Report: rep, Pool: snap})
}

// getPool devolve o snapshot do pool, preferencialmente do cache Redis.
func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.snaps != nil {
		var cached engine.Snapshot
		if ok, _ := s.snaps.GetCurrent(r.Context(), id, &cached); ok {
			writeJSON(w, http.StatusOK, dto.PoolResponse{Pool: cached})
			return
		}
	}

	snap, err := s.eng.Snapshot(id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PoolResponse{Pool: snap})
}

// getJournal devolve a trilha de auditoria do pool.
func (s *Server) getJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	id := chi.URLParam(r, "id")
	rows, err := s.journal.ListByEvent(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// record grava no journal; best effort, falha só é logada
func (s *Server) record(ctx context.Context, e repo.Entry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Insert(ctx, e); err != nil {
		s.log.Warn("journal insert failed", zap.String("eventId", e.EventID), zap.Error(err))
	}
}

// publish emite o evento de ciclo de vida no Kafka; best effort
func (s *Server) publish(ctx context.Context, e events.PoolEvent) {
	if s.publ == nil {
		return
	}
	if err := s.publ.PublishPoolEvent(ctx, e); err != nil {
		s.log.Warn("pool event publish failed", zap.String("eventId", e.EventID), zap.Error(err))
	}
}

// broadcast atualiza o snapshot no Redis e avisa o hub WS; best effort
func (s *Server) broadcast(ctx context.Context, snap engine.Snapshot) {
	if s.snaps == nil {
		return
	}
	if err := s.snaps.SetCurrent(ctx, snap); err != nil {
		s.log.Warn("snapshot cache set failed", zap.String("eventId", snap.EventID), zap.Error(err))
	}
	if err := s.snaps.Publish(ctx, snap); err != nil {
		s.log.Warn("snapshot broadcast failed", zap.String("eventId", snap.EventID), zap.Error(err))
	}
}
