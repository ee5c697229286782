package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"

	"github.com/technosupport/ts-auth/internal/access"
	"github.com/technosupport/ts-auth/internal/api"
	"github.com/technosupport/ts-auth/internal/audit"
	"github.com/technosupport/ts-auth/internal/authz"
	"github.com/technosupport/ts-auth/internal/config"
	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/middleware"
	"github.com/technosupport/ts-auth/internal/reaper"
	"github.com/technosupport/ts-auth/internal/session"
	"github.com/technosupport/ts-auth/internal/tokens"
)

const defaultOverlayPath = "config/default.yaml"

func main() {
	// 1. Config
	cfg, err := config.Load(defaultOverlayPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. DB Init
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}
	defer db.Close()

	quit := make(chan struct{})

	// 3. Token issuance salt: env value, hot-reloaded from file when set.
	var secret tokens.SecretSource
	if cfg.SecretFile != "" {
		fileSecret := tokens.NewFileSecret(cfg.SecretFile, cfg.Secret)
		fileSecret.StartWatcher(quit)
		secret = fileSecret
	} else {
		secret = tokens.StaticSecret(cfg.Secret)
	}

	// 4. Components
	tokenMgr := tokens.NewManager(db, tokens.Config{
		UserTTLSeconds:    cfg.UserTokenTTLSeconds,
		ServiceTTLSeconds: cfg.ServiceTokenTTLSeconds,
		RenewThreshold:    cfg.RenewThresholdSeconds,
	}, secret, nil)

	lockout := session.NewLockout(cfg.RedisAddr, cfg.LockoutThreshold, cfg.LockoutWindow)
	defer lockout.Close()
	if lockout.Enabled() {
		log.Printf("[server] login lockout enabled via redis at %s", cfg.RedisAddr)
	}

	var publisher *audit.Publisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Printf("[server] NATS unavailable (%v), audit events stay local", err)
		} else {
			defer nc.Close()
			publisher = audit.NewPublisher(nc, cfg.NATSSubject, 3)
		}
	}
	auditLog := audit.NewLogger(publisher)

	services := data.NewServiceModel(db)
	orchestrator := &authz.Orchestrator{
		Tokens:   tokenMgr,
		Services: services,
		Resolver: access.Resolver{DB: db},
		Audit:    auditLog,
	}

	// 5. Reaper
	reap := reaper.New(tokenMgr, cfg.ReapInterval)
	reap.Start()
	defer reap.Stop()

	// 6. Routes
	router := api.NewRouter(api.RouterConfig{
		Auth: &api.AuthHandler{
			People:       data.PersonModel{DB: db},
			Tokens:       tokenMgr,
			Orchestrator: orchestrator,
			Lockout:      lockout,
		},
		Users: &api.UserHandler{
			People: data.PersonModel{DB: db},
			Tokens: tokenMgr,
		},
		Services: &api.ServiceHandler{
			Services: services,
			Tokens:   tokenMgr,
		},
		Roles: &api.RoleHandler{
			Roles:  data.RoleModel{DB: db},
			Tokens: tokenMgr,
		},
		Permissions: &api.PermissionHandler{
			Permissions: data.PermissionModel{DB: db},
			Tokens:      tokenMgr,
		},
		Relations: &api.RelationHandler{
			Relations:   data.RelationModel{DB: db},
			People:      data.PersonModel{DB: db},
			Services:    services,
			Permissions: data.PermissionModel{DB: db},
			Grants:      data.GrantModel{DB: db},
			Tokens:      tokenMgr,
		},
		TokenAuth:   middleware.NewTokenAuth(orchestrator),
		CORSOrigin:  cfg.CORSOrigin,
		CORSHeaders: cfg.CORSHeaders,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("ts-auth listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("[server] shutting down")
	close(quit)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[server] shutdown error: %v", err)
	}
}
