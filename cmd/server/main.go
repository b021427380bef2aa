package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/example/statecraft/internal/auth"
	"github.com/example/statecraft/internal/config"
	srv "github.com/example/statecraft/internal/server"
	"github.com/example/statecraft/internal/store"
)

func main() {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	var (
		certFile = flag.String("cert", "", "Path to certificate file")
		keyFile  = flag.String("key", "", "Path to private key file")
		tlsOnly  = flag.Bool("tls-only", false, "Only serve HTTPS")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}

	var snapshots srv.SnapshotStore
	if cfg.RedisAddr != "" {
		redisStore, err := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("redis:", err)
		}
		defer redisStore.Close()
		snapshots = redisStore
	} else {
		log.Printf("REDIS_ADDR not set, room snapshots stay in-process")
		snapshots = store.NewMemory()
	}

	var verifier *auth.Verifier
	if cfg.AuthIssuer != "" {
		verifier = auth.NewVerifier(cfg.AuthIssuer, cfg.AuthClientID, cfg.AuthJWKSURL)
	}

	gate := auth.NewGate(auth.GateOptions{
		Cooldown:   cfg.AuthCooldown,
		StaleAfter: cfg.AuthStaleAfter,
		QueueSize:  cfg.AuthQueueSize,
	})

	gs := srv.NewGameServer(srv.GameServerOptions{
		Gate:     gate,
		Verifier: verifier,
		Engine: srv.EngineOptions{
			Store:           snapshots,
			Cards:           srv.NewMemoryCardService(),
			ExpirationGrace: cfg.ExpirationGrace,
		},
		DefaultRoomDuration: cfg.RoomDuration,
	})

	if err := gs.Engine().RestoreSnapshot(context.Background()); err != nil && err != store.ErrNotFound {
		log.Printf("restore snapshot: %v", err)
	}

	r := mux.NewRouter()

	// CORS headers first so health checks and websocket upgrades pass through
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}).Methods("GET")

	// WebSocket endpoint; authentication happens on the socket itself
	r.HandleFunc("/ws", gs.HandleWS)

	// Debug REST endpoints (protected when a verifier is configured)
	api := r.PathPrefix("/api").Subrouter()
	if verifier != nil {
		api.Use(verifier.AuthMiddleware)
	}
	api.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gs.HandleListRooms(w, r)
			return
		}
		if r.Method == http.MethodPost {
			gs.HandleCreateRoom(w, r)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	})

	// Cancel every expiration timer before the registry goes away
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Printf("shutting down, cancelling room timers")
		gs.Engine().ShutdownCleanup()
		os.Exit(0)
	}()

	certPath := *certFile
	keyPath := *keyFile
	if certPath == "" || keyPath == "" {
		certPath = "certs/server-san.crt"
		keyPath = "certs/server-san.key"
	}

	haveCerts := true
	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		haveCerts = false
	}
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		haveCerts = false
	}

	if !haveCerts {
		if *tlsOnly {
			log.Fatal("TLS-only mode enabled but certificates not found")
		}
		log.Printf("Certificates not found, serving HTTP only on :%s", cfg.HTTPPort)
		log.Fatal(http.ListenAndServe(":"+cfg.HTTPPort, r))
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}

	go func() {
		httpsAddr := ":" + cfg.HTTPSPort
		log.Printf("Statecraft backend (HTTPS) listening on %s", httpsAddr)
		server := &http.Server{
			Addr:      httpsAddr,
			Handler:   r,
			TLSConfig: tlsConfig,
		}
		if err := server.ListenAndServeTLS(certPath, keyPath); err != nil {
			log.Fatal("HTTPS server failed:", err)
		}
	}()

	if *tlsOnly {
		select {}
	}

	// HTTP listener redirects to HTTPS, health endpoints excepted
	httpRouter := mux.NewRouter()
	httpRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	httpRouter.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpsURL := "https://" + r.Host
		if cfg.HTTPSPort != "443" {
			httpsURL += ":" + cfg.HTTPSPort
		}
		httpsURL += r.RequestURI
		http.Redirect(w, r, httpsURL, http.StatusMovedPermanently)
	})

	log.Printf("Statecraft backend (HTTP->HTTPS redirect) listening on :%s", cfg.HTTPPort)
	log.Fatal(http.ListenAndServe(":"+cfg.HTTPPort, httpRouter))
}
