package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/config"
	"github.com/sefazor/ourphotos-kiosk/internal/handler"
	"github.com/sefazor/ourphotos-kiosk/internal/middleware"
	"github.com/sefazor/ourphotos-kiosk/internal/models"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/internal/realtime"
	"github.com/sefazor/ourphotos-kiosk/internal/repository"
	"github.com/sefazor/ourphotos-kiosk/internal/service"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/database"
	"github.com/sefazor/ourphotos-kiosk/pkg/email"
	"github.com/sefazor/ourphotos-kiosk/pkg/jwt"
	pkglogger "github.com/sefazor/ourphotos-kiosk/pkg/logger"
	"github.com/sefazor/ourphotos-kiosk/pkg/payment"
	"github.com/sefazor/ourphotos-kiosk/pkg/storage"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.LoadConfig()
	log := pkglogger.Must(cfg.Server.Env)
	defer log.Sync()
	if envErr != nil {
		log.Debug("no .env file loaded", zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}

	clk := clock.Real{}

	// Push hub: Redis fans out across API instances, otherwise in-process.
	var channels realtime.ChannelFunc
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis unreachable", zap.Error(err))
		}
		channels = func(eventID uint) notify.Channel {
			return notify.NewRedisChannel(rdb, realtime.EventChannel(cfg.Redis.Channel, eventID))
		}
	} else {
		local := notify.NewLocalHub()
		channels = func(eventID uint) notify.Channel {
			return local.Channel(realtime.EventChannel(cfg.Redis.Channel, eventID))
		}
	}
	hub := realtime.NewHub(channels, log.Named("hub"))
	go hub.Run(ctx)

	// Storage services
	var objects storage.ObjectStore = storage.NopStore{}
	if cfg.R2.AccountID != "" {
		r2, err := storage.NewCloudflareStorage(ctx, cfg.R2, log.Named("r2"))
		if err != nil {
			log.Fatal("Failed to initialize R2 storage", zap.Error(err))
		}
		objects = r2
	}

	var mailer service.Mailer
	if cfg.Email.ResendAPIKey != "" {
		mailer = email.NewEmailService(cfg.Email, log)
	}

	issuer := jwt.NewIssuer(cfg.JWT.Secret, cfg.JWT.Expiry)
	stripeService := payment.NewStripeService(cfg.Stripe)

	// Services
	eventService := service.NewEventService(repository.NewEventRepository(db), issuer, clk, log)
	albumService := service.NewAlbumService(db, objects, hub, mailer, clk, log)
	displayService := service.NewDisplayService(db, hub, clk, log)
	paymentService := service.NewPaymentService(stripeService, albumService, eventService, log)

	if cfg.Bootstrap.Slug != "" {
		var rules models.EventAccessRules
		rules.AlbumTracking.Enabled = true
		rules.AlbumTracking.Rules.MaxPhotosPerAlbum = cfg.Bootstrap.MaxPhotos
		event, err := eventService.EnsureEvent(ctx, models.CreateEventRequest{
			Title:           cfg.Bootstrap.Title,
			Slug:            cfg.Bootstrap.Slug,
			StaffPIN:        cfg.Bootstrap.StaffPIN,
			RegistrationURL: cfg.Bootstrap.RegistrationURL,
			Rules:           rules,
		})
		if err != nil {
			log.Fatal("bootstrap event", zap.Error(err))
		}
		log.Info("bootstrap event ready", zap.Uint("event_id", event.ID), zap.String("slug", event.Slug))
	}

	janitor := service.NewJanitor(repository.NewRequestRepository(db), clk, log)
	if err := janitor.Start(service.DefaultJanitorSchedule); err != nil {
		log.Fatal("janitor", zap.Error(err))
	}

	validator := utils.NewValidator()

	app := fiber.New(fiber.Config{
		AppName:               "ourphotos-kiosk store",
		DisableStartupMessage: cfg.IsProduction(),
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Staff-PIN",
		AllowMethods: "GET, POST, PUT, DELETE",
	}))
	app.Use(logger.New())
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.RateLimit,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	handler.Routes{
		Albums:    handler.NewAlbumHandler(albumService, eventService, validator),
		Events:    handler.NewEventHandler(eventService, albumService, displayService, validator),
		Payments:  handler.NewPaymentHandler(paymentService, stripeService, log.Named("stripe")),
		StaffAuth: middleware.StaffAuth(issuer, log),
	}.Register(app.Group("/api"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/events/{id}", hub.ServeWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	hubServer := &http.Server{Addr: cfg.Hub.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info("push hub listening", zap.String("addr", cfg.Hub.Addr))
		if err := hubServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("push hub stopped", zap.Error(err))
			stop()
		}
	}()
	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Error("api stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("api shutdown", zap.Error(err))
	}
	if err := hubServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("hub shutdown", zap.Error(err))
	}
	<-janitor.Stop().Done()
}
