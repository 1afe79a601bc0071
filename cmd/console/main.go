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

	"github.com/sefazor/ourphotos-kiosk/internal/config"
	"github.com/sefazor/ourphotos-kiosk/internal/console"
	"github.com/sefazor/ourphotos-kiosk/internal/lifecycle"
	"github.com/sefazor/ourphotos-kiosk/internal/notify"
	"github.com/sefazor/ourphotos-kiosk/internal/station"
	"github.com/sefazor/ourphotos-kiosk/pkg/albumclient"
	"github.com/sefazor/ourphotos-kiosk/pkg/clock"
	"github.com/sefazor/ourphotos-kiosk/pkg/kv"
	pkglogger "github.com/sefazor/ourphotos-kiosk/pkg/logger"
	"github.com/sefazor/ourphotos-kiosk/pkg/utils"
)

// rulesRefresh is how often the console re-reads the event rules.
const rulesRefresh = time.Minute

func main() {
	envErr := godotenv.Load()

	cfg := config.LoadConfig()
	log := pkglogger.Must(cfg.Server.Env).Named("console")
	defer log.Sync()
	if envErr != nil {
		log.Debug("no .env file loaded", zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("console stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	sc := cfg.Console
	if sc.EventID == 0 {
		return fmt.Errorf("CONSOLE_EVENT_ID or EVENT_ID is required")
	}
	clk := clock.Real{}

	store, err := kv.OpenSQLite(sc.KVPath)
	if err != nil {
		return err
	}
	defer store.Close()

	client := albumclient.New(sc.StoreURL, albumclient.DefaultTimeout)
	if err := console.EnsureStaffToken(ctx, client, store, clk, sc.EventID, sc.StaffPIN); err != nil {
		return err
	}

	rules, err := client.GetEventRules(ctx, sc.EventID)
	if err != nil {
		return fmt.Errorf("load event rules: %w", err)
	}
	commander := lifecycle.NewCommander(client, rules)
	rulesPoller := station.NewScheduler("console-rules", rulesRefresh, func(ctx context.Context) error {
		rules, err := client.GetEventRules(ctx, sc.EventID)
		if err != nil {
			return err
		}
		commander.SetRules(rules)
		return nil
	}, log)
	go rulesPoller.Run(ctx)

	dismissed, err := kv.LoadStringSet(store, kv.KeyDismissedRequests)
	if err != nil {
		return err
	}
	dedup := notify.NewDeduplicator(clk, sc.DedupWindow, dismissed)

	channel, closeChannel, err := notify.OpenChannel(ctx, cfg.Redis.URL, cfg.Redis.Channel, notify.NewLocalHub())
	if err != nil {
		return err
	}
	defer closeChannel()

	socketURL := fmt.Sprintf("%s/ws/events/%d", sc.PushURL, sc.EventID)
	bus := notify.NewBus(log.Named("bus"), dedup,
		notify.NewSocketTransport(socketURL, nil, notify.DefaultReconnectDelay, log.Named("socket")),
		notify.NewBroadcastTransport(channel, notify.DefaultReconnectDelay, log.Named("broadcast")),
		notify.NewPollTransport(client, sc.EventID, sc.PollInterval, log.Named("poll")),
	)

	aggregator := console.NewAggregator(console.Options{
		EventID:   sc.EventID,
		Bus:       bus,
		Commander: commander,
		Display:   client,
		Alerter:   console.NewLogAlerter(log),
		Store:     store,
		Clock:     clk,
		Log:       log,
	})
	if err := aggregator.Start(); err != nil {
		return err
	}
	defer aggregator.Dispose()

	bus.Start(ctx)
	defer bus.Dispose()

	app := fiber.New(fiber.Config{AppName: "ourphotos-kiosk console", DisableStartupMessage: cfg.IsProduction()})
	app.Use(recover.New())
	app.Use(logger.New())
	console.NewHandler(aggregator, commander, client, utils.NewValidator()).Register(app.Group("/api"))

	errc := make(chan error, 1)
	go func() {
		log.Info("console listening", zap.String("addr", sc.HTTPAddr), zap.Uint("event_id", sc.EventID))
		errc <- app.Listen(sc.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}
	return app.ShutdownWithTimeout(5 * time.Second)
}
