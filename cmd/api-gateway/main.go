package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/radieske/pool-bet-platform-poc/internal/shared/config"
	"github.com/radieske/pool-bet-platform-poc/internal/shared/logger"
)

func rp(to string) *httputil.ReverseProxy {
	u, _ := url.Parse(to)
	return httputil.NewSingleHostReverseProxy(u)
}

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// targets
	poolURL := os.Getenv("POOL_URL")
	if poolURL == "" {
		poolURL = "http://localhost:8083"
	}
	walletURL := os.Getenv("WALLET_URL")
	if walletURL == "" {
		walletURL = "http://localhost:8082"
	}
	oracleURL := os.Getenv("ORACLE_URL")
	if oracleURL == "" {
		oracleURL = "http://localhost:8081"
	}
	pool := rp(poolURL)
	wallet := rp(walletURL)
	oracle := rp(oracleURL)

	mux := http.NewServeMux()

	// pools (ex.: /api/pools/* -> pool-service)
	mux.Handle("/api/pools/", http.StripPrefix("/api", pool))

	// ações do adaptador (ex.: /api/actions/* -> pool-service)
	mux.Handle("/api/actions/", http.StripPrefix("/api", pool))

	// feed WS de atualizações de pools (o proxy repassa o upgrade)
	mux.Handle("/ws", pool)

	// wallet (ex.: /api/wallet/* -> wallet-service)
	mux.Handle("/api/wallet/", http.StripPrefix("/api", wallet))

	// parciais simuladas do oracle (ex.: /api/oracle/ws -> oracle-simulator)
	mux.Handle("/api/oracle/", http.StripPrefix("/api/oracle", oracle))

	addr := ":" + cfg.HTTPPort
	log.Info("api-gateway listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, withCORS(mux)); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
