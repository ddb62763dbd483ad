package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maeul-board/backend/internal/account/service"
	"maeul-board/backend/internal/audit"
	auditrepo "maeul-board/backend/internal/audit/repository"
	"maeul-board/backend/internal/config"
	"maeul-board/backend/internal/db"
	"maeul-board/backend/internal/identity"
	"maeul-board/backend/internal/identity/local"
	"maeul-board/backend/internal/identity/rest"
	"maeul-board/backend/internal/mailer"
	"maeul-board/backend/internal/profile"
	"maeul-board/backend/internal/recovery"
	"maeul-board/backend/internal/security"
	"maeul-board/backend/internal/telemetry"
	telemetryotel "maeul-board/backend/internal/telemetry/otel"
	"maeul-board/backend/internal/telemetry/producer"
	"maeul-board/backend/internal/throttle"
	"maeul-board/backend/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "maeul-board", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required; create a .env from .env.example or set DATABASE_URL")
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	profiles := profile.NewPostgresStore(database)
	auditRepo := auditrepo.NewPostgresRepository(database)
	auditor := audit.NewLogger(auditRepo, clientIP)

	cache, err := recovery.OpenSQLite(cfg.RecoveryDBPath, cfg.RecoveryRecordTTL())
	if err != nil {
		log.Fatalf("recovery cache: %v", err)
	}
	defer cache.Close()

	emitter, closeEmitter, err := buildEmitter(cfg, providers)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer closeEmitter()

	newProvider, verifier, err := buildIdentity(cfg)
	if err != nil {
		log.Fatalf("identity: %v", err)
	}

	factory := func() (*service.Controller, error) {
		return service.NewController(
			newProvider(), profiles, cache,
			throttle.New(cfg.LoginFailThreshold, cfg.LockBase(), cfg.Cooldown()),
			auditor, emitter,
			service.Options{
				VerifyRedirectURL: cfg.VerifyRedirectURL,
				ProfileTimeout:    cfg.ProfileTimeout(),
				SignoutDelay:      cfg.SignoutDelayDuration(),
				RecoveryTTL:       cfg.RecoveryRecordTTL(),
			},
		)
	}
	registry := web.NewRegistry(factory, 0)
	srv := web.NewServer(cfg.HTTPAddr, registry, verifier, auditRepo)

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	// Let in-flight async telemetry emits finish before the providers go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

// buildIdentity wires the configured identity backend: a per-session client
// factory plus, for the local authority, the verification-link consumer.
func buildIdentity(cfg *config.Config) (func() identity.Provider, web.EmailVerifier, error) {
	switch cfg.IdentityProvider {
	case "rest":
		return func() identity.Provider {
			return rest.NewClient(cfg.IdentityAPIKey, cfg.IdentityAPIURL)
		}, nil, nil
	case "local":
		tokens, err := security.NewTokenProvider([]byte(cfg.AuthTokenSecret), "maeul-auth", cfg.SessionTokenTTL(), cfg.VerifyTTL())
		if err != nil {
			return nil, nil, err
		}
		var mail mailer.Sender = mailer.LogSender{}
		if cfg.SMTPHost != "" {
			mail, err = mailer.NewSMTPSender(mailer.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
			})
			if err != nil {
				return nil, nil, err
			}
		}
		authority := local.NewAuthority(security.NewHasher(cfg.BcryptCost), tokens, mail, cfg.PublicBaseURL)
		return func() identity.Provider { return authority.NewClient() }, authority, nil
	default:
		return nil, nil, errors.New("unknown identity provider")
	}
}

// buildEmitter assembles the telemetry fan-out: OTel logs always, Kafka when
// brokers are configured.
func buildEmitter(cfg *config.Config, providers *telemetryotel.Providers) (telemetry.EventEmitter, func(), error) {
	emitters := telemetry.Multi{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	closeFn := func() {}

	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		closeFn = func() {
			if err := kafkaProducer.Close(); err != nil {
				log.Printf("telemetry: kafka close: %v", err)
			}
		}
	}
	return emitters, closeFn, nil
}

// clientIP extracts the audit IP stored in the request context by the web layer.
func clientIP(ctx context.Context) string {
	if ip, ok := web.ClientIP(ctx); ok {
		return ip
	}
	return "unknown"
}
