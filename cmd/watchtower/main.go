package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/halcyon-labs/watchtower/internal/api"
	"github.com/halcyon-labs/watchtower/internal/config"
	"github.com/halcyon-labs/watchtower/internal/crypto"
	"github.com/halcyon-labs/watchtower/internal/data"
	"github.com/halcyon-labs/watchtower/internal/engine"
	"github.com/halcyon-labs/watchtower/internal/facesearch"
	"github.com/halcyon-labs/watchtower/internal/natspub"
	"github.com/halcyon-labs/watchtower/internal/statestore"
	"github.com/halcyon-labs/watchtower/internal/storage"
	"github.com/halcyon-labs/watchtower/internal/tokens"
	"github.com/halcyon-labs/watchtower/internal/transcode"
	"github.com/halcyon-labs/watchtower/internal/vendors"

	_ "github.com/halcyon-labs/watchtower/internal/vendors/ring"
)

func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation error: %v", err)
	}

	// DB Init
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	sealer, err := crypto.NewCredentialSealer(cfg.CredentialKey)
	if err != nil {
		log.Fatalf("Credential sealer error: %v", err)
	}

	// Data layer
	events := data.MotionEventModel{DB: db}
	visitors := data.VisitorLogModel{DB: db}
	states := data.CameraStateModel{DB: db}
	accounts := data.VendorModel{DB: db}

	// Lifecycle state store: Redis when available, JSON file otherwise.
	var loopStates engine.StateStore
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Redis ping error: %v", err)
		}
		loopStates = statestore.NewRedisStore(rdb, cfg.Redis.StateKey)
	} else {
		loopStates = statestore.NewFileStore(cfg.StateFile)
	}

	// Event fan-out
	var pub engine.Publisher
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL, nats.MaxReconnects(-1))
		if err != nil {
			log.Fatalf("NATS connect error: %v", err)
		}
		defer nc.Close()
		pub = natspub.New(nc, cfg.NATS.Subject, 3)
	}

	converter, err := transcode.NewConverter(cfg.FFmpegPath)
	if err != nil {
		log.Printf("[WARN] Main: ffmpeg unavailable, clips will be uploaded as-is: %v", err)
		converter = nil
	}

	blobs := storage.NewHTTPBlobStore(cfg.Blob.BaseURL, cfg.Blob.Bucket, cfg.Blob.APIKey)
	faces := facesearch.New(facesearch.Config{
		BaseURL:      cfg.FaceSearch.BaseURL,
		APIKey:       cfg.FaceSearch.APIKey,
		CollectionID: cfg.FaceSearch.CollectionID,
		Timeout:      cfg.FaceSearch.Timeout,
	}, engine.NewJobGuard())

	// Engine
	registry := engine.NewCameraRegistry(states)
	sessions := engine.NewSessionRegistry()
	dispatcher := engine.NewDispatcher(events, visitors, faces, registry, engine.DispatcherConfig{
		UploadWorkers:     cfg.Engine.UploadWorkers,
		FaceSearchWorkers: cfg.Engine.FaceSearchWorkers,
		SubmitDelay:       cfg.Engine.SubmitDelay,
	})
	scheduler := engine.NewScheduler(registry, sessions, events, dispatcher, pub, engine.SchedulerConfig{
		TickInterval:   cfg.Engine.TickInterval,
		HeartbeatTicks: cfg.Engine.HeartbeatTicks,
		RetryAttempts:  cfg.Engine.RetryAttempts,
		RetryBaseDelay: cfg.Engine.RetryBaseDelay,
		RetryMaxDelay:  cfg.Engine.RetryMaxDelay,
		DedupCacheSize: cfg.Engine.DedupCacheSize,
		DedupTTL:       cfg.Engine.DedupTTL,
	})
	lifecycle := engine.NewLifecycleManager(scheduler, registry, loopStates, engine.LifecycleConfig{
		StopTimeout: cfg.Engine.StopTimeout,
	})

	// Vendor integrations
	ctx := context.Background()
	deps := vendors.Deps{
		Events:    events,
		Blobs:     blobs,
		Converter: converter,
		SaveToken: func(ctx context.Context, plugin, token string, expires time.Time) error {
			acct, err := accounts.GetByPlugin(ctx, plugin)
			if err != nil {
				return err
			}
			enc, err := sealer.SealString(token)
			if err != nil {
				return err
			}
			return accounts.UpdateRefreshToken(ctx, acct.ID, enc, expires)
		},
	}
	if cfg.Ring.Enabled {
		if err := registerVendor(ctx, "ring", cfg, accounts, sealer, deps, registry, sessions); err != nil {
			log.Printf("[ERROR] Main: ring integration unavailable: %v", err)
		}
	}

	// Management API
	tokenMgr := tokens.NewManager(cfg.Management.SigningKey)
	server := &api.Server{
		Engine:   lifecycle,
		States:   states,
		Visitors: visitors,
		Auth:     api.NewJWTAuth(tokenMgr),
		DB:       db,
	}
	httpSrv := &http.Server{
		Addr:         cfg.Management.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		log.Printf("Management API listening on %s", cfg.Management.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Runtime config changes need a loop restart to apply; the watcher just
	// surfaces them in the log.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	config.Watch(watchCtx, *configPath, func(next *config.Config) {
		if next.Engine != cfg.Engine {
			log.Printf("[WARN] Main: engine tunables changed on disk, restart the poll loop to apply")
		}
	})

	// Resume polling automatically when the daemon was running at shutdown.
	if st, err := loopStates.Load(ctx); err == nil && st.Running {
		log.Printf("Main: previous session was running, starting poll loop")
		if err := lifecycle.Start(ctx); err != nil {
			log.Printf("[ERROR] Main: auto-start failed: %v", err)
		}
	}

	// Shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.StopTimeout+10*time.Second)
	defer cancel()

	if lifecycle.GetStatus(shutdownCtx).Running {
		if err := lifecycle.Stop(shutdownCtx); err != nil {
			log.Printf("[ERROR] Main: stop on shutdown failed: %v", err)
		}
	}
	if !dispatcher.WaitIdle(30 * time.Second) {
		log.Printf("[WARN] Main: dispatcher jobs still running at shutdown")
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Main: HTTP shutdown error: %v", err)
	}
	log.Println("Shutdown complete.")
}

// registerVendor resolves credentials (stored account row first, config
// fallback), builds the adapter, and registers its session and cameras.
func registerVendor(ctx context.Context, plugin string, cfg *config.Config, accounts data.VendorModel, sealer *crypto.CredentialSealer, deps vendors.Deps, registry *engine.CameraRegistry, sessions *engine.SessionRegistry) error {
	acct := vendors.Account{
		Plugin:       plugin,
		Username:     cfg.Ring.Username,
		Password:     cfg.Ring.Password,
		BaseURL:      cfg.Ring.BaseURL,
		UserAgent:    cfg.Ring.UserAgent,
		PollInterval: cfg.Ring.PollInterval,
	}

	stored, err := accounts.GetByPlugin(ctx, plugin)
	switch {
	case err == nil:
		acct.Username = stored.Username
		if pw, err := sealer.Open(stored.PasswordEnc); err == nil {
			acct.Password = string(pw)
		} else {
			log.Printf("[WARN] Main: cannot decrypt stored %s password: %v", plugin, err)
		}
		if len(stored.RefreshTokenEnc) > 0 {
			if tok, err := sealer.Open(stored.RefreshTokenEnc); err == nil {
				acct.RefreshToken = string(tok)
			} else {
				log.Printf("[WARN] Main: cannot decrypt stored %s refresh token: %v", plugin, err)
			}
		}
	case errors.Is(err, data.ErrRecordNotFound):
		// Config credentials only.
	default:
		return err
	}

	session, cameras, err := vendors.Build(ctx, acct, deps)
	if err != nil {
		return err
	}

	sessions.Register(plugin, session)
	sessions.UpdateStatus(plugin, engine.VendorActive)
	for _, cam := range cameras {
		if err := registry.Register(ctx, cam); err != nil {
			log.Printf("[WARN] Main: registering camera %s/%s: %v", cam.Vendor(), cam.Name(), err)
		}
	}
	log.Printf("Main: registered %d %s cameras", len(cameras), plugin)
	return nil
}
