package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/access"
	"github.com/sefazor/ourphotos-kiosk/internal/config"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/internal/visitor"
	"github.com/sefazor/ourphotos-kiosk/pkg/albumclient"
	pkglogger "github.com/sefazor/ourphotos-kiosk/pkg/logger"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.LoadConfig()
	log := pkglogger.Must(cfg.Server.Env).Named("station")
	defer log.Sync()
	if envErr != nil {
		log.Debug("no .env file loaded", zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("station stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	sc := cfg.Station
	client := albumclient.New(sc.StoreURL, albumclient.DefaultTimeout)

	channel, closeChannel, err := notify.OpenChannel(ctx, cfg.Redis.URL, cfg.Redis.Channel, notify.NewLocalHub())
	if err != nil {
		return err
	}
	defer closeChannel()

	lock := access.ViewerLockPolicy
	if sc.Gallery {
		lock = access.GalleryLockPolicy
	}

	app := fiber.New(fiber.Config{AppName: "ourphotos-kiosk station", DisableStartupMessage: cfg.IsProduction()})
	app.Use(recover.New())
	app.Use(logger.New())
	visitor.NewHandler(ctx, visitor.Options{
		Store:       client,
		Channel:     channel,
		Role:        access.RoleVisitor,
		Lock:        lock,
		StationType: sc.StationType,
		StationID:   sc.StationID,
		Interval:    sc.PollInterval,
		Validator:   utils.NewValidator(),
		Log:         log,
	}).Register(app.Group("/api"))

	errc := make(chan error, 1)
	go func() {
		log.Info("station listening", zap.String("addr", sc.HTTPAddr), zap.String("type", sc.StationType))
		errc <- app.Listen(sc.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	}
	return app.ShutdownWithTimeout(5 * time.Second)
}
