package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	pcache "github.com/radieske/pool-bet-platform-poc/internal/pool-service/cache"
	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/engine"
	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/funding"
	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/httpapi"
	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/oracle"
	kpub "github.com/radieske/pool-bet-platform-poc/internal/pool-service/producer"
	"github.com/radieske/pool-bet-platform-poc/internal/pool-service/repo"
	pws "github.com/radieske/pool-bet-platform-poc/internal/pool-service/ws"
	sharedcache "github.com/radieske/pool-bet-platform-poc/internal/shared/cache"
	"github.com/radieske/pool-bet-platform-poc/internal/shared/config"
	"github.com/radieske/pool-bet-platform-poc/internal/shared/db"
	"github.com/radieske/pool-bet-platform-poc/internal/shared/kafka"
	"github.com/radieske/pool-bet-platform-poc/internal/shared/logger"
	"github.com/radieske/pool-bet-platform-poc/internal/shared/metrics"
	ev "github.com/radieske/pool-bet-platform-poc/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres (journal de auditoria dos pools)
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis (snapshot corrente + pub/sub do hub WS)
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Kafka writers: eventos de pool, requisições de oracle e DLQ
	poolWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPoolEvents)
	defer poolWriter.Close()
	oracleWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicOracleRequests)
	defer oracleWriter.Close()

	var dlqWriter *kafka.Writer
	if cfg.TopicOracleFulfillmentsDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicOracleFulfillmentsDLQ)
		defer dlqWriter.Close()
	}

	// Kafka reader: fulfillments do oracle (consumer group pool-service)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicOracleFulfillments, "pool-service")
	defer reader.Close()

	// deps do motor
	fundingClient := funding.New(cfg.WalletURL)
	eng := engine.New(log, fundingClient)
	publ := kpub.NewKafkaPublisher(poolWriter, oracleWriter)
	bridge := oracle.NewBridge(log, eng, publ)
	journal := repo.NewJournal(pg)
	snaps := pcache.NewSnapshots(redisClient, 60*time.Second, cfg.RedisPubSubChannel)

	// Métricas Prometheus do fluxo de fulfillment
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "pool_oracle_fulfillments_consumed_total", Help: "fulfillments consumidos"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{Name: "pool_settlements_total", Help: "settlements aplicados"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pool_fulfillments_rejected_total", Help: "fulfillments rejeitados"}, []string{"reason"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pool_oracle_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, settled, rejected, errorsBy)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Consumer de fulfillments: após o settlement, journal + evento Kafka +
	// snapshot no Redis (mesma trilha dos handlers HTTP)
	cons := &oracle.Consumer{
		Log:        log,
		Reader:     reader,
		Bridge:     bridge,
		DLQ:        dlqWriter,
		OnConsumed: func() { consumed.Inc() },
		OnRejected: func(reason string) { rejected.WithLabelValues(reason).Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
		OnSettled: func(rep engine.SettleReport) {
			settled.Inc()

			jctx, jcancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer jcancel()

			for _, po := range rep.Payouts {
				detail := "prize"
				if !po.Paid {
					detail = "prize (queued)"
				}
				if err := journal.Insert(jctx, repo.Entry{
					EventID:     rep.EventID,
					Kind:        repo.KindPayout,
					Bettor:      po.Bettor,
					AmountCents: po.AmountCents,
					Detail:      detail,
				}); err != nil {
					log.Warn("journal payout failed", zap.Error(err))
				}
			}
			if rep.DustCents > 0 {
				if err := journal.Insert(jctx, repo.Entry{
					EventID:     rep.EventID,
					Kind:        repo.KindDust,
					AmountCents: rep.DustCents,
					Detail:      "floor-division remainder retained in custody",
				}); err != nil {
					log.Warn("journal dust failed", zap.Error(err))
				}
			}

			snap, err := eng.Snapshot(rep.EventID)
			if err != nil {
				return
			}
			if err := journal.Insert(jctx, repo.Entry{EventID: rep.EventID, Kind: repo.KindState, Detail: snap.State}); err != nil {
				log.Warn("journal state failed", zap.Error(err))
			}
			if err := publ.PublishPoolEvent(jctx, ev.PoolEvent{
				EventID:        rep.EventID,
				MatchID:        snap.MatchID,
				Kind:           ev.PoolSettled,
				Outcome:        rep.Winner.String(),
				TotalPoolCents: snap.TotalPoolCents,
				State:          snap.State,
			}); err != nil {
				log.Warn("pool event publish failed", zap.Error(err))
			}
			if err := snaps.SetCurrent(jctx, snap); err != nil {
				log.Warn("snapshot cache set failed", zap.Error(err))
			}
			if err := snaps.Publish(jctx, snap); err != nil {
				log.Warn("snapshot broadcast failed", zap.Error(err))
			}
		},
	}

	go func() {
		if err := cons.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("fulfillment consumer stopped", zap.Error(err))
		}
	}()

	// Hub WS alimentado pelo Pub/Sub do Redis
	hub := pws.NewHub(func(r *http.Request) bool { return true })
	pws.StartRedisSubscriber(ctx, log, redisClient, cfg.RedisPubSubChannel, hub)

	// HTTP público: API de pools + WS
	api := httpapi.NewServer(log, eng, bridge, journal, snaps, publ, cfg.OwnerToken, cfg.AdapterToken)
	appMux := http.NewServeMux()
	appMux.Handle("/", api.Router())
	appMux.HandleFunc("/ws", hub.HandleWS)

	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: appMux,
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(hctx context.Context) error {
		if err := pg.PingContext(hctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := redisClient.Ping(hctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	defer metricsSrv.Close()

	log.Info("pool-service listening",
		zap.String("addr", apiSrv.Addr),
		zap.String("consume", cfg.TopicOracleFulfillments),
		zap.String("publish", cfg.TopicOracleRequests),
	)
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
