package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/radieske/pool-bet-platform-poc/internal/shared/config"
	"github.com/radieske/pool-bet-platform-poc/internal/shared/kafka"
	"github.com/radieske/pool-bet-platform-poc/internal/shared/logger"
	"github.com/radieske/pool-bet-platform-poc/pkg/contracts/events"
)

var (
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	// Catálogo fixo de partidas simuladas com resultado final conhecido
	matchResults = map[string]string{
		"MATCH_001": "home",
		"MATCH_002": "away",
		"MATCH_003": "draw",
		"MATCH_004": "home",
	}

	// Métricas Prometheus para monitoramento do oracle simulado
	requestsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_requests_consumed_total",
		Help: "Requisições de resultado consumidas",
	})
	fulfillmentsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_fulfillments_sent_total",
		Help: "Fulfillments publicados (inclui duplicatas propositais)",
	})
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "oracle_ws_connections",
		Help: "Clientes WebSocket conectados ao feed de partidas",
	})
)

// liveScore é o payload do feed WS de partidas simuladas
type liveScore struct {
	MatchID string    `json:"match_id"`
	Home    int       `json:"home"`
	Away    int       `json:"away"`
	Minute  int       `json:"minute"`
	Ts      time.Time `json:"ts"`
}

// hub gerencia os clientes do feed WS e faz broadcast das parciais
type hub struct {
	mu      sync.RWMutex
	clients map[string]*websocket.Conn
	log     *zap.Logger
}

func newHub(log *zap.Logger) *hub {
	return &hub{clients: make(map[string]*websocket.Conn), log: log}
}

func (h *hub) add(id string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = c
	wsConnections.Inc()
	h.log.Info("ws client connected", zap.String("client_id", id))
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		wsConnections.Dec()
		h.log.Info("ws client disconnected", zap.String("client_id", id))
	}
}

func (h *hub) broadcast(v any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msg, _ := json.Marshal(v)
	for id, c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn("ws write failed", zap.String("client_id", id), zap.Error(err))
			_ = c.Close()
		}
	}
}

// fulfill publica a resposta do oracle após um atraso aleatório, ecoando o
// correlation id recebido. De vez em quando manda a mesma resposta duas
// vezes: o lado consumidor precisa ser idempotente de qualquer forma.
func fulfill(ctx context.Context, log *zap.Logger, w *kafka.Writer, req events.OracleRequest) {
	delay := time.Duration(1+rand.Intn(4)) * time.Second
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	outcome, ok := matchResults[req.MatchID]
	if !ok {
		outcomes := []string{"draw", "home", "away"}
		outcome = outcomes[rand.Intn(len(outcomes))]
	}

	ff := events.OracleFulfilled{
		CorrelationID: req.CorrelationID,
		Outcome:       outcome,
		Raw:           req.Times * int64(1+rand.Intn(3)),
		Ts:            time.Now().UTC(),
	}
	payload, _ := json.Marshal(ff)

	sends := 1
	if rand.Intn(100) < 10 {
		sends = 2 // duplicata proposital
	}
	for i := 0; i < sends; i++ {
		if err := kafka.WriteJSON(ctx, w, req.CorrelationID, payload); err != nil {
			log.Warn("fulfillment publish failed", zap.String("correlationId", req.CorrelationID), zap.Error(err))
			return
		}
		fulfillmentsSent.Inc()
	}

	log.Info("fulfillment sent",
		zap.String("correlationId", req.CorrelationID),
		zap.String("matchId", req.MatchID),
		zap.String("outcome", outcome),
		zap.Int("sends", sends),
	)
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	rand.Seed(time.Now().UnixNano())

	prometheus.MustRegister(requestsConsumed, fulfillmentsSent, wsConnections)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Kafka: consome requisições e publica fulfillments
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicOracleRequests, "oracle-simulator")
	defer reader.Close()

	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicOracleFulfillments)
	defer writer.Close()

	go func() {
		for {
			_, value, err := kafka.ReadNext(ctx, reader)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("kafka read", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			requestsConsumed.Inc()

			var req events.OracleRequest
			if err := json.Unmarshal(value, &req); err != nil {
				log.Warn("invalid oracle request", zap.Error(err))
				continue
			}
			log.Info("oracle request received",
				zap.String("correlationId", req.CorrelationID),
				zap.String("matchId", req.MatchID),
				zap.String("resultPath", req.ResultPath),
			)
			go fulfill(ctx, log, writer, req)
		}
	}()

	h := newHub(log)

	// Feed de parciais simuladas a cada 3 segundos
	go func() {
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		minute := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				minute++
				for matchID := range matchResults {
					h.broadcast(liveScore{
						MatchID: matchID,
						Home:    rand.Intn(4),
						Away:    rand.Intn(4),
						Minute:  minute,
						Ts:      time.Now().UTC(),
					})
				}
			}
		}
	}()

	// ==== MUX PÚBLICO: /ws (feed de partidas)
	appMux := http.NewServeMux()
	appMux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws upgrade failed", zap.Error(err))
			return
		}
		id := fmt.Sprintf("%d", time.Now().UnixNano())
		h.add(id, conn)

		go func() {
			defer func() {
				h.remove(id)
				_ = conn.Close()
			}()
			for {
				// Lê e descarta mensagens do cliente para manter o socket limpo
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	// ==== MUX DE MÉTRICAS (/healthz, /metrics)
	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsMux.Handle("/metrics", promhttp.Handler())

	go func() {
		metricsAddr := fmt.Sprintf(":%s", cfg.MetricsPort)
		log.Info("oracle simulator (metrics) running", zap.String("addr", metricsAddr))
		if err := http.ListenAndServe(metricsAddr, metricsMux); err != nil {
			log.Fatal("metrics server error", zap.Error(err))
		}
	}()

	publicAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Info("oracle simulator (public) running",
		zap.String("addr", publicAddr),
		zap.String("consume", cfg.TopicOracleRequests),
		zap.String("publish", cfg.TopicOracleFulfillments),
	)
	if err := http.ListenAndServe(publicAddr, appMux); err != nil {
		log.Fatal("public server error", zap.Error(err))
	}
}
