package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/database"
	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/jobs"
	"github.com/iliyamo/tour-booking/internal/logging"
	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/notification"
	"github.com/iliyamo/tour-booking/internal/queue"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/router"
	"github.com/iliyamo/tour-booking/internal/service"
	"github.com/iliyamo/tour-booking/internal/validation"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logging.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			logging.Fatal().Err(err).Msg("schema migration failed")
		}
	}

	store := repository.NewStore(db)
	tokens := repository.NewTokenRepo(db)
	repos := service.Repos{
		Arrangements:   repository.NewArrangementRepo(db),
		Reservations:   repository.NewReservationRepo(db),
		Users:          repository.NewUserRepo(db),
		AccountTypes:   repository.NewAccountTypeRepo(db),
		ChangeRequests: repository.NewChangeRequestRepo(db),
	}

	var pub notification.Publisher = notification.LogPublisher{}
	var broker *queue.Publisher
	if cfg.RabbitURL != "" {
		broker = queue.NewPublisher(cfg.RabbitURL, cfg.MailQueue)
		pub = broker
	} else {
		logging.Warn().Msg("RABBITMQ_URL not set, emails are logged only")
	}
	notifier := notification.New(pub, cfg.PublicURL)

	opts := service.Options{PageSize: cfg.PageSize}
	users := service.NewUserService(store, repos, notifier, tokens,
		service.AccountOptions{Secret: cfg.JWTSecret, ResetTTL: cfg.ResetTTL, BcryptCost: cfg.BcryptCost}, opts)
	arrangements := service.NewArrangementService(store, repos, notifier, opts)
	reservations := service.NewReservationService(store, repos, notifier, opts)
	changes := service.NewChangeRequestService(store, repos, notifier, opts)

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validation.Echo{}
	e.Use(echomw.Recover())
	e.Use(metrics.Middleware())
	e.Use(middleware.RequestLogger())

	router.Register(e, router.Deps{
		JWTSecret: cfg.JWTSecret,
		Users:     users,
		DB:        db,
		Auth: handler.NewAuthHandler(handler.AuthConfig{
			JWTSecret:      cfg.JWTSecret,
			AccessTTLMin:   cfg.AccessTTLMin,
			RefreshTTLDays: cfg.RefreshTTLDays,
		}, users, tokens),
		Arrangements:   handler.NewArrangementHandler(arrangements),
		Reservations:   handler.NewReservationHandler(reservations),
		ChangeRequests: handler.NewChangeRequestHandler(changes),
		Accounts:       handler.NewUserHandler(users),
		Cache:          middleware.NewResponseCache(config.LoadCacheConfig(), rdb),
		RateLimit:      middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	})

	sched, err := jobs.Start(tokens, cfg.TokenPurgeEvery)
	if err != nil {
		logging.Fatal().Err(err).Msg("scheduler start failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Info().Str("addr", cfg.Addr()).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http shutdown")
	}
	if err := sched.Shutdown(); err != nil {
		logging.Error().Err(err).Msg("scheduler shutdown")
	}
	notifier.Wait()
	if broker != nil {
		if err := broker.Close(); err != nil {
			logging.Error().Err(err).Msg("broker close")
		}
	}
}
