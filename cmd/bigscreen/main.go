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

	"github.com/sefazor/ourphotos-kiosk/internal/bigscreen"
	"github.com/sefazor/ourphotos-kiosk/internal/config"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/pkg/albumclient"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/kv"
	pkglogger "github.com/sefazor/ourphotos-kiosk/pkg/logger"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.LoadConfig()
	log := pkglogger.Must(cfg.Server.Env).Named("bigscreen")
	defer log.Sync()
	if envErr != nil {
		log.Debug("no .env file loaded", zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("big screen stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	sc := cfg.BigScreen
	if sc.EventID == 0 {
		return fmt.Errorf("BIGSCREEN_EVENT_ID or EVENT_ID is required")
	}
	clk := clock.Real{}

	store, err := kv.OpenSQLite(sc.KVPath)
	if err != nil {
		return err
	}
	defer store.Close()

	client := albumclient.New(sc.StoreURL, albumclient.DefaultTimeout)
	event, err := client.GetEvent(ctx, sc.EventID)
	if err != nil {
		return fmt.Errorf("load event %d: %w", sc.EventID, err)
	}

	coordCfg := bigscreen.DefaultConfig()
	coordCfg.SlotPoll = sc.PollInterval
	coord := bigscreen.NewCoordinator(sc.EventID, client, store, clk, coordCfg, log)

	channel, closeChannel, err := notify.OpenChannel(ctx, cfg.Redis.URL, cfg.Redis.Channel, notify.NewLocalHub())
	if err != nil {
		return err
	}
	defer closeChannel()

	// display commands are never deduplicated, so no dismissed set is kept
	socketURL := fmt.Sprintf("%s/ws/events/%d", sc.PushURL, sc.EventID)
	bus := notify.NewBus(log.Named("bus"), notify.NewDeduplicator(clk, 0, nil),
		notify.NewSocketTransport(socketURL, nil, notify.DefaultReconnectDelay, log.Named("socket")),
		notify.NewBroadcastTransport(channel, notify.DefaultReconnectDelay, log.Named("broadcast")),
	)
	unsubscribe := bus.Subscribe(coord.HandleEvent)
	defer unsubscribe()
	bus.Start(ctx)
	defer bus.Dispose()

	if err := coord.Restore(ctx); err != nil {
		log.Warn("could not restore display", zap.Error(err))
	}
	go coord.Run(ctx, client)

	branding := bigscreen.Branding{
		Title:           event.Title,
		RegistrationURL: event.RegistrationURL,
		Watermark:       event.Watermark,
	}

	app := fiber.New(fiber.Config{AppName: "ourphotos-kiosk big screen", DisableStartupMessage: cfg.IsProduction()})
	app.Use(recover.New())
	app.Use(logger.New())
	bigscreen.NewHandler(coord, branding, sc.QRSize).Register(app.Group("/api"))

	errc := make(chan error, 1)
	go func() {
		log.Info("big screen listening", zap.String("addr", sc.HTTPAddr), zap.Uint("event_id", sc.EventID))
		errc <- app.Listen(sc.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}
	return app.ShutdownWithTimeout(5 * time.Second)
}
