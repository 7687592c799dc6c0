package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"tradejournal/internal/api"
	"tradejournal/internal/auth"
	"tradejournal/internal/config"
	"tradejournal/internal/db"
	"tradejournal/internal/email"
	"tradejournal/internal/ratelimit"
	"tradejournal/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load env file", "path", *envPath, "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Server.Environment == config.EnvDevelopment {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("starting server", "name", cfg.Server.Name, "environment", cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	var redisClient redis.UniversalClient
	if cfg.Redis.URL != "" {
		client, err := ratelimit.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		redisClient = client
		slog.Info("redis connected, rate limits are shared")
	}

	smtpSender := email.NewSMTPSender(
		cfg.Email.SMTP.Host,
		cfg.Email.SMTP.Port,
		cfg.Email.SMTP.Username,
		cfg.Email.SMTP.Password,
		cfg.Email.From,
	)
	slog.Info("email configured", "host", cfg.Email.SMTP.Host, "port", cfg.Email.SMTP.Port)

	var sender email.Sender = smtpSender
	if cfg.Broker.URL != "" {
		queueSender := email.NewQueueSender(cfg.Broker.URL, cfg.Broker.Queue)
		defer queueSender.Close()
		sender = queueSender

		consumer := email.NewQueueConsumer(cfg.Broker.URL, cfg.Broker.Queue, smtpSender)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("email queue consumer stopped", "error", err)
			}
		}()
		slog.Info("email queue enabled", "queue", cfg.Broker.Queue)
	}

	notifier, err := email.NewNotifier(sender, email.NotifierConfig{
		AppName:      cfg.Server.Name,
		FrontendURL:  cfg.Server.FrontendURL,
		AdminEmail:   cfg.Email.AdminEmail,
		SupportEmail: cfg.Email.SupportEmail,
	})
	if err != nil {
		slog.Error("failed to initialize notifier", "error", err)
		os.Exit(1)
	}

	params := auth.DefaultArgon2Params()
	params.Memory = cfg.Auth.Argon2.Memory
	params.Time = cfg.Auth.Argon2.Time
	params.Parallelism = cfg.Auth.Argon2.Parallelism
	hasher, err := auth.NewHasher(params)
	if err != nil {
		slog.Error("invalid password hashing parameters", "error", err)
		os.Exit(1)
	}

	jwtService := auth.NewJWTService(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTokenTTL.Std(),
		cfg.Auth.RefreshTokenTTL.Std(),
	)

	users := db.NewUserRepository(database)
	refreshTokens := db.NewRefreshTokenRepository(database)
	resets := db.NewPasswordResetRepository(database)

	accounts := service.NewAccountService(users, hasher, notifier)
	sessions := service.NewSessionService(users, refreshTokens, hasher, jwtService)
	passwordResets := service.NewPasswordResetService(users, resets, hasher, notifier)

	if admin := cfg.Auth.BootstrapAdmin; admin.Email != "" && admin.Password != "" {
		created, err := accounts.EnsureSuperAdmin(ctx, admin.Email, admin.Password)
		if err != nil {
			slog.Error("failed to bootstrap super admin", "error", err)
			os.Exit(1)
		}
		if created {
			slog.Info("super admin bootstrapped", "email", admin.Email)
		}
	}

	cleanupService := db.NewCleanupService(refreshTokens, passwordResets, cfg.Maintenance.CleanupInterval.Std())
	go cleanupService.Start(ctx)

	server, err := api.NewServer(cfg, database, redisClient, jwtService, api.Services{
		Accounts:       accounts,
		Sessions:       sessions,
		PasswordResets: passwordResets,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "frontend_url", cfg.Server.FrontendURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	notifier.Wait()

	slog.Info("server stopped")
}
