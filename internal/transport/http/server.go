package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pushfanout/internal/config"
	"pushfanout/internal/database"
	"pushfanout/internal/events"
	"pushfanout/internal/queue"
	"pushfanout/internal/repository"
	"pushfanout/internal/service"
	"pushfanout/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Connect to Database and apply the schema
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return err
	}

	// 3. Connect to Redis (command stream)
	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer rdb.Close()
	log.Println("Connected to Redis successfully")

	// 4. Push providers
	pushClient, err := newPushClient(ctx, cfg)
	if err != nil {
		return err
	}

	// 5. Repositories and services
	tokenRepo := repository.NewDeviceTokenRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)

	tokenService := service.NewDeviceTokenService(tokenRepo)
	recordManager := service.NewRecordManager(notifRepo, cfg.Push.FinalizeAttempts)
	dispatcher := service.NewDispatcher(userRepo, projectRepo, tokenService, recordManager, pushClient, service.DispatcherConfig{
		SendTimeout:    cfg.Push.SendTimeout,
		MaxConcurrency: cfg.Push.MaxConcurrency,
	})

	// 6. Outcome events and history requests (optional)
	if cfg.NATSURL != "" {
		publisher, err := events.NewNatsPublisher(cfg.NATSURL)
		if err != nil {
			log.Printf("[Server] NATS unavailable, outcome events disabled: %v", err)
		} else {
			defer publisher.Close()
			dispatcher.SetOutcomePublisher(publisher)
			log.Printf("[Server] Publishing outcome events to %s", cfg.NATSURL)
		}

		history, err := events.NewHistoryResponder(cfg.NATSURL, recordManager)
		if err != nil {
			log.Printf("[Server] NATS unavailable, history requests disabled: %v", err)
		} else {
			defer history.Close()
		}
	}

	// 7. Workers
	managerCfg := worker.DefaultManagerConfig()
	managerCfg.WorkerCount = cfg.WorkerCount
	manager := worker.NewManager(queue.NewConsumer(rdb), worker.NewHandler(dispatcher, tokenService, recordManager), managerCfg)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer manager.Stop()

	// 8. Ops server
	router := NewRouter(RouterConfig{Checks: map[string]HealthCheck{
		"postgres": db.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}})
	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newPushClient wires every provider that has credentials configured.
func newPushClient(ctx context.Context, cfg *config.Config) (*service.PushClient, error) {
	var opts []service.PushClientOption

	if cfg.FCMConfigured() {
		fcm, err := service.NewFCMClient(ctx, service.FCMCredentials{
			ProjectID:       cfg.FirebaseProjectID,
			ClientEmail:     cfg.FirebaseClientEmail,
			PrivateKey:      cfg.FirebasePrivateKey,
			CredentialsFile: cfg.FirebaseCredentialsFile,
		}, service.WebPushPresentation{
			Icon:  cfg.Push.WebIcon,
			Badge: cfg.Push.WebBadge,
			Tag:   cfg.Push.WebTag,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize FCM: %w", err)
		}
		opts = append(opts, service.WithFCM(fcm))
	} else {
		log.Println("[Server] Firebase credentials not found, FCM disabled")
	}

	if cfg.APNsConfigured() {
		apns, err := service.NewAPNsClient(service.APNsCredentials{
			AuthKeyPath: cfg.APNsAuthKeyPath,
			KeyID:       cfg.APNsKeyID,
			TeamID:      cfg.APNsTeamID,
			Topic:       cfg.APNsTopic,
			Production:  cfg.APNsProduction,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize APNs: %w", err)
		}
		opts = append(opts, service.WithAPNs(apns))
	} else if missing := cfg.APNsMissing(); len(missing) < 4 {
		log.Printf("[Server] APNs partially configured, missing %s; iOS tokens go through FCM", strings.Join(missing, ", "))
	} else {
		log.Println("[Server] APNs credentials not found, iOS tokens go through FCM")
	}

	if cfg.ExpoPushEnabled {
		opts = append(opts, service.WithExpo(service.NewExpoPushClient()))
		log.Println("[Server] Expo push enabled")
	}

	return service.NewPushClient(opts...), nil
}
