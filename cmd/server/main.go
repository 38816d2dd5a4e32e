package main

import (
	"context"
	"log"
	"net/http"
	"os"

	delivery "portfolio-sync/internal/delivery/http"
	"portfolio-sync/internal/delivery/websocket"
	"portfolio-sync/internal/domain"
	"portfolio-sync/internal/infrastructure/aggregator"
	"portfolio-sync/internal/infrastructure/db"
	"portfolio-sync/internal/infrastructure/fcm"
	"portfolio-sync/internal/infrastructure/secrets"
	"portfolio-sync/internal/repository"
	"portfolio-sync/internal/usecase"
)

func main() {
	ctx := context.Background()

	// 1. Storage: bind the record store to the most capable engine.
	store := repository.NewStore(ctx, os.Getenv("DATABASE_URL"), db.PoolConfigFromEnv())
	log.Printf("Storage engine: %s", store.Engine())

	cipher := secrets.NewCipher(os.Getenv("ENCRYPTION_KEY"))

	baseURL := os.Getenv("AGGREGATOR_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	api := aggregator.NewClient(baseURL)

	// 2. Push notifications (disabled when no Firebase credentials).
	tokenRepo := repository.NewTokenRepository()
	fcmClient, err := fcm.NewClient()
	if err != nil {
		log.Printf("FCM init failed, push disabled: %v", err)
		fcmClient = nil
	}
	notifier := usecase.NewSyncNotifier(fcmClient, tokenRepo)

	// 3. Sync core: engine republishes into the poller and the notifier.
	poller := usecase.NewOrdersPoller(store, api, os.Getenv("SYNC_USER_ID"))
	defer poller.Close()

	engine := usecase.NewSyncEngine(store, cipher, api)
	engine.OnResult(func(result *domain.SyncResult) {
		poller.OnBalanceUpdate(result)
		notifier.NotifyFailures(result)
	})
	defer engine.Stop()

	// 4. Delivery.
	exchangeHandler := delivery.NewExchangeHandler(store, cipher)
	syncHandler := delivery.NewSyncHandler(engine, poller, store)
	tokenHandler := delivery.NewTokenHandler(tokenRepo)
	wsHandler := websocket.NewHandler(store, poller)

	http.HandleFunc("/api/exchanges", exchangeHandler.Handle)
	http.HandleFunc("/api/exchanges/toggle", exchangeHandler.ToggleExchange)
	http.HandleFunc("/api/sync/start", syncHandler.StartSession)
	http.HandleFunc("/api/sync/stop", syncHandler.StopSession)
	http.HandleFunc("/api/sync/refresh", syncHandler.Refresh)
	http.HandleFunc("/api/sync/refresh-each", syncHandler.RefreshEach)
	http.HandleFunc("/api/balances", syncHandler.GetBalances)
	http.HandleFunc("/api/orders", syncHandler.GetOrders)
	http.HandleFunc("/api/tokens/register", tokenHandler.HandleRegisterToken)
	http.HandleFunc("/api/tokens/unregister", tokenHandler.HandleUnregisterToken)
	http.HandleFunc("/ws", wsHandler.Handle)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	log.Printf("Server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal(err)
	}
}
