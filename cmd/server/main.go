package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"ojack/internal/auth"
	"ojack/internal/config"
	"ojack/internal/gateway"
	"ojack/internal/ledger"
	"ojack/internal/notify"
	"ojack/internal/room"
	"ojack/internal/session"
	"ojack/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[Server] No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Server] Failed to load config: %v", err)
	}

	st, err := store.Open(cfg.StoreMode, cfg.SQLitePath, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[Server] Failed to init store: %v", err)
	}
	defer st.Close()

	hub := store.NewHub()
	st = store.WithHub(st, hub)

	tg := notify.NewTelegram()
	users := ledger.NewService(st, tg)
	authService := auth.NewService(users, tg, cfg.SessionTTL)
	rooms := room.NewService(st, users, tg, room.Timers{
		AutoDeal:    cfg.AutoDealDelay,
		AutoAdvance: cfg.AutoAdvanceDelay,
		RoomTimeout: cfg.RoomTimeout,
	})
	defer rooms.Close()

	if err := authService.EnsureSuperAdmin(context.Background(), cfg.SuperAdminUser, cfg.SuperAdminPassword); err != nil {
		log.Fatalf("[Server] Failed to ensure super admin: %v", err)
	}

	coord := session.NewCoordinator(st, hub, users, rooms, cfg.PollInterval, cfg.CleanupInterval)
	go coord.Run()
	defer coord.Stop()

	gw := gateway.New(authService, users, rooms, coord, tg)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	log.Printf("[Server] Store mode: %s", cfg.StoreMode)
	log.Printf("[Server] Starting WebSocket server on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		log.Fatalf("[Server] Failed to start: %v", err)
	}
}
